package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"route-optimizer/internal/database"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
	"route-optimizer/internal/planner"
)

// RoutePlanner produces an optimized plan for a request
type RoutePlanner interface {
	Plan(ctx context.Context, req planner.PlanRequest) (*models.Plan, error)
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	Planner  RoutePlanner
	Geocoder geocoding.Geocoder
	Store    database.CacheStore
	// OptimizeTimeout bounds a single optimize request. Zero means no limit.
	OptimizeTimeout time.Duration

	validate *validator.Validate
}

// New builds a Handler
func New(p RoutePlanner, geocoder geocoding.Geocoder, store database.CacheStore, optimizeTimeout time.Duration) *Handler {
	return &Handler{
		Planner:         p,
		Geocoder:        geocoder,
		Store:           store,
		OptimizeTimeout: optimizeTimeout,
		validate:        validator.New(),
	}
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError describes one failed validation rule
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Str("component", "http").Err(err).Msg("failed to encode response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string, details any) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Error().Str("component", "http").Err(err).Msg("internal error")
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// handlePlanError maps planner failures onto status codes
func (h *Handler) handlePlanError(w http.ResponseWriter, err error) {
	var cfgErr *optimizer.ErrInvalidConfig
	var fewErr *optimizer.ErrInsufficientWaypoints

	switch {
	case errors.As(err, &cfgErr):
		h.writeError(w, http.StatusUnprocessableEntity, "INVALID_CONFIG", cfgErr.Error(), map[string]string{
			"field":  cfgErr.Field,
			"reason": cfgErr.Reason,
		})
	case errors.As(err, &fewErr):
		h.writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_WAYPOINTS", fewErr.Error(), map[string]int{
			"got": fewErr.Got,
			"min": fewErr.Min,
		})
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Route optimization timed out.", nil)
	case planner.IsUpstreamFailure(err):
		log.Warn().Str("component", "http").Err(err).Msg("upstream service failure")
		h.writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", err.Error(), nil)
	default:
		h.handleInternalError(w, err)
	}
}

// validationDetails flattens validator errors into FieldErrors
func validationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field: fe.Namespace(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return details
}
