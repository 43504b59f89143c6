package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
	"route-optimizer/internal/planner"
)

// maxRequestBytes caps the optimize request body
const maxRequestBytes = 1 << 20

// WaypointInput is a stop given by coordinates
type WaypointInput struct {
	Lat   float64 `json:"lat" validate:"latitude"`
	Lng   float64 `json:"lng" validate:"longitude"`
	Label string  `json:"label,omitempty" validate:"max=200"`
}

// AnnealInput overrides the annealing schedule for one request
type AnnealInput struct {
	Iterations         int     `json:"iterations" validate:"gt=0"`
	InitialTemperature float64 `json:"initial_temperature" validate:"gt=0"`
	CoolingRate        float64 `json:"cooling_rate" validate:"gt=0,lt=1"`
}

// OptimizeRouteRequest represents the request for route optimization.
// Give either addresses or waypoints; the first and last entries are the
// route endpoints.
type OptimizeRouteRequest struct {
	Addresses      []string        `json:"addresses" validate:"omitempty,max=100,dive,required,max=300"`
	Waypoints      []WaypointInput `json:"waypoints" validate:"omitempty,max=100,dive"`
	Mode           string          `json:"mode" validate:"omitempty,oneof=anneal exhaustive greedy"`
	Metric         string          `json:"metric" validate:"omitempty,oneof=road geodesic"`
	Shape          string          `json:"shape" validate:"required,oneof=open closed"`
	FixedEndpoints bool            `json:"fixed_endpoints"`
	Anneal         *AnnealInput    `json:"anneal,omitempty"`
	Restarts       int             `json:"restarts" validate:"gte=0,lte=64"`
	Seed           *uint64         `json:"seed,omitempty"`
	SkipGeometry   bool            `json:"skip_geometry"`
}

// toPlanRequest converts a validated body into a planner request
func (req OptimizeRouteRequest) toPlanRequest() (planner.PlanRequest, error) {
	shape, err := optimizer.ParseShape(req.Shape)
	if err != nil {
		return planner.PlanRequest{}, err
	}

	out := planner.PlanRequest{
		Addresses:      req.Addresses,
		Mode:           planner.Mode(req.Mode),
		Metric:         planner.Metric(req.Metric),
		Shape:          shape,
		FixedEndpoints: req.FixedEndpoints,
		Restarts:       req.Restarts,
		Seed:           req.Seed,
		SkipGeometry:   req.SkipGeometry,
	}
	if len(req.Waypoints) > 0 {
		out.Waypoints = lo.Map(req.Waypoints, func(w WaypointInput, _ int) models.Waypoint {
			return models.Waypoint{Coords: models.Coordinates{Lat: w.Lat, Lng: w.Lng}, Label: w.Label}
		})
	}
	if req.Anneal != nil {
		out.Anneal = &optimizer.Config{
			Iterations:         req.Anneal.Iterations,
			InitialTemperature: req.Anneal.InitialTemperature,
			CoolingRate:        req.Anneal.CoolingRate,
		}
	}
	return out, nil
}

// HandleOptimizeRoute handles POST /api/v1/routes/optimize
func (h *Handler) HandleOptimizeRoute(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRouteRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Debug().Str("component", "http").Err(err).Msg("optimize: invalid json")
		h.handleValidationError(w, "Invalid request body", nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.handleValidationError(w, "Request failed validation", validationDetails(err))
		return
	}

	planReq, err := req.toPlanRequest()
	if err != nil {
		h.handlePlanError(w, err)
		return
	}

	ctx := r.Context()
	if h.OptimizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.OptimizeTimeout)
		defer cancel()
	}

	log.Info().Str("component", "http").
		Int("addresses", len(planReq.Addresses)).Int("waypoints", len(planReq.Waypoints)).
		Str("mode", req.Mode).Str("shape", req.Shape).
		Msg("optimize request")

	plan, err := h.Planner.Plan(ctx, planReq)
	if err != nil {
		h.handlePlanError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, plan)
}
