package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"route-optimizer/internal/geocoding"
)

const (
	minSearchQueryLen = 4
	searchLimit       = 5
)

// AddressSuggestion is one address-search hit
type AddressSuggestion struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// HandleAddressSearch handles GET /api/v1/address-search
func (h *Handler) HandleAddressSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("address")

	if len(query) < minSearchQueryLen {
		h.writeJSON(w, http.StatusOK, []AddressSuggestion{})
		return
	}

	results, err := h.Geocoder.Search(r.Context(), query, searchLimit)
	if err != nil {
		log.Warn().Str("component", "http").Str("query", query).Err(err).Msg("address search failed")
		h.writeJSON(w, http.StatusOK, []AddressSuggestion{})
		return
	}

	log.Debug().Str("component", "http").Str("query", query).Int("results", len(results)).Msg("address search")

	h.writeJSON(w, http.StatusOK, lo.Map(results, func(res geocoding.GeocodingResult, _ int) AddressSuggestion {
		return AddressSuggestion{DisplayName: res.DisplayName, Lat: res.Coords.Lat, Lng: res.Coords.Lng}
	}))
}
