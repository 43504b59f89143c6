package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"route-optimizer/internal/models"
)

const (
	// DefaultNominatimBaseURL is the public OpenStreetMap Nominatim server
	DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"
	userAgent               = "RouteOptimizer/1.0"
	reasonNotFound          = "no results found"
)

// GeocodingResult contains the result of a geocoding operation
type GeocodingResult struct {
	Coords      models.Coordinates
	DisplayName string
}

// Geocoder provides address-to-coordinates conversion
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodingResult, error)
	GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error)
	Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error)
}

// ErrGeocodingFailed is returned when an address cannot be geocoded
type ErrGeocodingFailed struct {
	Address string
	Reason  string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for address: %s - %s", e.Address, e.Reason)
}

// NotFound reports whether the service answered but had no match
func (e *ErrGeocodingFailed) NotFound() bool {
	return e.Reason == reasonNotFound
}

// IsNotFound reports whether err is an ErrGeocodingFailed with no match
func IsNotFound(err error) bool {
	var geoErr *ErrGeocodingFailed
	return errors.As(err, &geoErr) && geoErr.NotFound()
}

// NotFoundError builds the error Geocode returns for an address with no match
func NotFoundError(address string) *ErrGeocodingFailed {
	return &ErrGeocodingFailed{Address: address, Reason: reasonNotFound}
}

type nominatimGeocoder struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	backoffBase time.Duration
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimGeocoder creates a Nominatim geocoder limited to one request
// per second, the public server's usage policy.
func NewNominatimGeocoder(baseURL string) Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	return &nominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		backoffBase: time.Second,
	}
}

func (g *nominatimGeocoder) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	results, err := g.search(ctx, address, 1)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		log.Warn().Str("component", "geocoding").Str("address", address).Msg("no geocoding results found")
		return nil, NotFoundError(address)
	}

	result := results[0]
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		log.Error().Str("component", "geocoding").Str("address", address).Str("lat", result.Lat).Err(err).Msg("invalid latitude in response")
		return nil, &ErrGeocodingFailed{Address: address, Reason: "invalid latitude"}
	}
	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		log.Error().Str("component", "geocoding").Str("address", address).Str("lng", result.Lon).Err(err).Msg("invalid longitude in response")
		return nil, &ErrGeocodingFailed{Address: address, Reason: "invalid longitude"}
	}

	log.Debug().Str("component", "geocoding").Str("address", address).
		Float64("lat", lat).Float64("lng", lng).Str("display_name", result.DisplayName).
		Msg("geocoded")

	return &GeocodingResult{
		Coords:      models.Coordinates{Lat: lat, Lng: lng},
		DisplayName: result.DisplayName,
	}, nil
}

// GeocodeWithRetry retries transient failures with exponential backoff.
// A definitive "no results" answer is returned immediately.
func (g *nominatimGeocoder) GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := g.Geocode(ctx, address)
		if err == nil {
			return result, nil
		}
		if IsNotFound(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err

		if i < maxRetries-1 {
			backoff := g.backoffBase * time.Duration(1<<uint(i))
			log.Warn().Str("component", "geocoding").Str("address", address).
				Int("attempt", i+1).Int("max_retries", maxRetries).Dur("backoff", backoff).Err(err).
				Msg("retrying geocode")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	log.Error().Str("component", "geocoding").Str("address", address).Int("retries", maxRetries).Err(lastErr).Msg("geocoding failed")
	return nil, lastErr
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error) {
	results, err := g.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	geocodingResults := make([]GeocodingResult, 0, len(results))
	for _, result := range results {
		lat, err := strconv.ParseFloat(result.Lat, 64)
		if err != nil {
			log.Warn().Str("component", "geocoding").Str("query", query).Str("lat", result.Lat).Msg("skipping result with invalid latitude")
			continue
		}
		lng, err := strconv.ParseFloat(result.Lon, 64)
		if err != nil {
			log.Warn().Str("component", "geocoding").Str("query", query).Str("lng", result.Lon).Msg("skipping result with invalid longitude")
			continue
		}

		geocodingResults = append(geocodingResults, GeocodingResult{
			Coords:      models.Coordinates{Lat: lat, Lng: lng},
			DisplayName: result.DisplayName,
		})
	}

	return geocodingResults, nil
}

// search performs one rate-limited /search request
func (g *nominatimGeocoder) search(ctx context.Context, query string, limit int) ([]nominatimResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=%d", g.baseURL, url.QueryEscape(query), limit)
	log.Debug().Str("component", "geocoding").Str("query", query).Int("limit", limit).Msg("nominatim request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error().Str("component", "geocoding").Str("query", query).Err(err).Msg("nominatim request failed")
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error().Str("component", "geocoding").Str("query", query).Int("status", resp.StatusCode).Str("body", string(body)).Msg("nominatim error")
		return nil, &ErrGeocodingFailed{
			Address: query,
			Reason:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var results []nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		log.Error().Str("component", "geocoding").Str("query", query).Err(err).Msg("failed to decode nominatim response")
		return nil, &ErrGeocodingFailed{Address: query, Reason: err.Error()}
	}

	return results, nil
}
