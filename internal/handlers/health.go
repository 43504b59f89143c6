package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthResponse is the health endpoint body
type HealthResponse struct {
	Status       string `json:"status"`
	CachedRoutes int    `json:"cached_routes"`
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.HealthCheck(r.Context()); err != nil {
		log.Error().Str("component", "http").Err(err).Msg("cache store unhealthy")
		h.writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "Cache store unavailable.", nil)
		return
	}

	count, err := h.Store.DistanceCache().Count(r.Context())
	if err != nil {
		h.handleInternalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", CachedRoutes: count})
}
