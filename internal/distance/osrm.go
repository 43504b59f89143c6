package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

// DefaultOSRMBaseURL is the public OSRM demo server
const DefaultOSRMBaseURL = "https://router.project-osrm.org"

// DistanceResult contains the result of a distance calculation
type DistanceResult struct {
	DistanceMeters float64
	DurationSecs   float64
}

// DistanceCalculator provides distance calculations between coordinates
type DistanceCalculator interface {
	GetDistance(ctx context.Context, origin, dest models.Coordinates) (*DistanceResult, error)
	GetDistanceMatrix(ctx context.Context, points []models.Coordinates) ([][]DistanceResult, error)
	GetDistancesFromPoint(ctx context.Context, origin models.Coordinates, destinations []models.Coordinates) ([]DistanceResult, error)
}

// GeometryProvider returns the road polyline through ordered points
type GeometryProvider interface {
	RouteGeometry(ctx context.Context, points []models.Coordinates) (*models.RouteGeometry, error)
}

// ErrDistanceCalculationFailed is returned when OSRM API fails.
// Err holds the transport or decode cause, if any.
type ErrDistanceCalculationFailed struct {
	Origin models.Coordinates
	Dest   models.Coordinates
	Reason string
	Err    error
}

func (e *ErrDistanceCalculationFailed) Error() string {
	return fmt.Sprintf("distance calculation failed: %s", e.Reason)
}

func (e *ErrDistanceCalculationFailed) Unwrap() error {
	return e.Err
}

// OSRMCalculator is a DistanceCalculator and GeometryProvider backed by OSRM
type OSRMCalculator struct {
	baseURL    string
	httpClient *http.Client
	cache      database.DistanceCacheRepository
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// NewOSRMCalculator creates a new OSRM distance calculator with caching
func NewOSRMCalculator(baseURL string, cache database.DistanceCacheRepository) *OSRMCalculator {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	return &OSRMCalculator{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}
}

func (c *OSRMCalculator) GetDistance(ctx context.Context, origin, dest models.Coordinates) (*DistanceResult, error) {
	if origin.SamePoint(dest) {
		return &DistanceResult{DistanceMeters: 0, DurationSecs: 0}, nil
	}

	cached, err := c.cache.Get(ctx, origin, dest)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return &DistanceResult{
			DistanceMeters: cached.DistanceMeters,
			DurationSecs:   cached.DurationSecs,
		}, nil
	}

	log.Debug().Str("component", "osrm").
		Float64("origin_lat", origin.Lat).Float64("origin_lng", origin.Lng).
		Float64("dest_lat", dest.Lat).Float64("dest_lng", dest.Lng).
		Msg("cache miss")

	results, err := c.GetDistancesFromPoint(ctx, origin, []models.Coordinates{dest})
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, &ErrDistanceCalculationFailed{
			Origin: origin,
			Dest:   dest,
			Reason: "no results returned",
		}
	}

	if results[0].DistanceMeters <= 0 {
		return nil, &ErrDistanceCalculationFailed{
			Origin: origin,
			Dest:   dest,
			Reason: "no route between points",
		}
	}

	return &results[0], nil
}

// maxOSRMCoordinates is the maximum number of coordinates OSRM public API accepts
const maxOSRMCoordinates = 80

func (c *OSRMCalculator) GetDistanceMatrix(ctx context.Context, points []models.Coordinates) ([][]DistanceResult, error) {
	n := len(points)
	if n == 0 {
		return [][]DistanceResult{}, nil
	}

	matrix := make([][]DistanceResult, n)
	for i := range matrix {
		matrix[i] = make([]DistanceResult, n)
	}

	pairs := make([]database.CoordinatePair, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				pairs = append(pairs, database.CoordinatePair{Origin: points[i], Dest: points[j]})
			}
		}
	}
	cached, err := c.cache.GetBatch(ctx, pairs)
	if err != nil {
		return nil, err
	}

	missing := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if hit, ok := cached[database.CacheKey(points[i], points[j])]; ok {
				matrix[i][j] = DistanceResult{
					DistanceMeters: hit.DistanceMeters,
					DurationSecs:   hit.DurationSecs,
				}
			} else {
				missing++
			}
		}
	}

	if missing == 0 {
		log.Debug().Str("component", "osrm").Int("points", n).Msg("distance matrix fully cached")
		return matrix, nil
	}

	log.Info().Str("component", "osrm").
		Int("points", n).Int("cached", n*(n-1)-missing).Int("missing", missing).
		Msg("distance matrix request")

	if n <= maxOSRMCoordinates {
		return c.fetchDistanceMatrixSingle(ctx, points, matrix)
	}

	return c.fetchDistanceMatrixBatched(ctx, points, matrix)
}

// fetchDistanceMatrixSingle fetches distance matrix in a single OSRM request
func (c *OSRMCalculator) fetchDistanceMatrixSingle(ctx context.Context, points []models.Coordinates, matrix [][]DistanceResult) ([][]DistanceResult, error) {
	n := len(points)
	queryURL := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration", c.baseURL, formatCoords(points))

	var osrmResp osrmTableResponse
	if err := c.getJSON(ctx, queryURL, &osrmResp); err != nil {
		return nil, err
	}
	if osrmResp.Code != "Ok" {
		return nil, &ErrDistanceCalculationFailed{Reason: fmt.Sprintf("OSRM error: %s", osrmResp.Code)}
	}
	if len(osrmResp.Distances) != n || len(osrmResp.Durations) != n {
		return nil, &ErrDistanceCalculationFailed{Reason: "OSRM table has wrong dimensions"}
	}

	var cacheEntries []models.DistanceCacheEntry
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && osrmResp.Distances[i][j] > 0 {
				matrix[i][j] = DistanceResult{
					DistanceMeters: osrmResp.Distances[i][j],
					DurationSecs:   osrmResp.Durations[i][j],
				}
				cacheEntries = append(cacheEntries, models.DistanceCacheEntry{
					Origin:         points[i],
					Destination:    points[j],
					DistanceMeters: osrmResp.Distances[i][j],
					DurationSecs:   osrmResp.Durations[i][j],
				})
			}
		}
	}

	if len(cacheEntries) > 0 {
		if err := c.cache.SetBatch(ctx, cacheEntries); err != nil {
			return nil, err
		}
	}

	return matrix, nil
}

// fetchDistanceMatrixBatched splits the points into blocks of at most
// maxOSRMCoordinates and requests every source/destination block pair.
func (c *OSRMCalculator) fetchDistanceMatrixBatched(ctx context.Context, points []models.Coordinates, matrix [][]DistanceResult) ([][]DistanceResult, error) {
	n := len(points)
	// Each request carries two blocks, so a block holds half the limit.
	blockSize := maxOSRMCoordinates / 2

	var blocks [][]int
	for i := 0; i < n; i += blockSize {
		end := min(i+blockSize, n)
		block := make([]int, 0, end-i)
		for j := i; j < end; j++ {
			block = append(block, j)
		}
		blocks = append(blocks, block)
	}

	log.Info().Str("component", "osrm").Int("points", n).Int("blocks", len(blocks)).Msg("using batched table requests")

	var allCacheEntries []models.DistanceCacheEntry
	requests := 0

	for bi, src := range blocks {
		for bj, dst := range blocks {
			// Sources first, then destinations not already listed.
			local := make(map[int]int)
			var batchPoints []models.Coordinates
			for _, idx := range append(append([]int{}, src...), dst...) {
				if _, ok := local[idx]; ok {
					continue
				}
				local[idx] = len(batchPoints)
				batchPoints = append(batchPoints, points[idx])
			}

			sources := make([]string, len(src))
			for k, idx := range src {
				sources[k] = fmt.Sprintf("%d", local[idx])
			}
			destinations := make([]string, len(dst))
			for k, idx := range dst {
				destinations[k] = fmt.Sprintf("%d", local[idx])
			}

			queryURL := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration&sources=%s&destinations=%s",
				c.baseURL, formatCoords(batchPoints), strings.Join(sources, ";"), strings.Join(destinations, ";"))

			var osrmResp osrmTableResponse
			if err := c.getJSON(ctx, queryURL, &osrmResp); err != nil {
				return nil, err
			}
			if osrmResp.Code != "Ok" {
				return nil, &ErrDistanceCalculationFailed{Reason: fmt.Sprintf("OSRM error: %s", osrmResp.Code)}
			}
			if len(osrmResp.Distances) != len(src) || len(osrmResp.Durations) != len(src) {
				return nil, &ErrDistanceCalculationFailed{Reason: "OSRM table has wrong dimensions"}
			}
			requests++

			for si, srcIdx := range src {
				if len(osrmResp.Distances[si]) != len(dst) || len(osrmResp.Durations[si]) != len(dst) {
					return nil, &ErrDistanceCalculationFailed{Reason: "OSRM table has wrong dimensions"}
				}
				for di, dstIdx := range dst {
					if srcIdx == dstIdx {
						continue
					}
					dist := osrmResp.Distances[si][di]
					dur := osrmResp.Durations[si][di]
					if dist > 0 {
						matrix[srcIdx][dstIdx] = DistanceResult{DistanceMeters: dist, DurationSecs: dur}
						allCacheEntries = append(allCacheEntries, models.DistanceCacheEntry{
							Origin:         points[srcIdx],
							Destination:    points[dstIdx],
							DistanceMeters: dist,
							DurationSecs:   dur,
						})
					}
				}
			}

			// Be polite to the shared public server between requests.
			if bi < len(blocks)-1 || bj < len(blocks)-1 {
				select {
				case <-time.After(100 * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
	}

	log.Info().Str("component", "osrm").Int("requests", requests).Int("entries", len(allCacheEntries)).Msg("batched requests complete")

	if len(allCacheEntries) > 0 {
		if err := c.cache.SetBatch(ctx, allCacheEntries); err != nil {
			return nil, err
		}
	}

	return matrix, nil
}

func (c *OSRMCalculator) GetDistancesFromPoint(ctx context.Context, origin models.Coordinates, destinations []models.Coordinates) ([]DistanceResult, error) {
	if len(destinations) == 0 {
		return []DistanceResult{}, nil
	}

	allPoints := append([]models.Coordinates{origin}, destinations...)
	matrix, err := c.GetDistanceMatrix(ctx, allPoints)
	if err != nil {
		return nil, err
	}

	results := make([]DistanceResult, len(destinations))
	for i := range destinations {
		results[i] = matrix[0][i+1]
	}

	return results, nil
}

// RouteGeometry fetches the driving polyline visiting points in order
func (c *OSRMCalculator) RouteGeometry(ctx context.Context, points []models.Coordinates) (*models.RouteGeometry, error) {
	if len(points) < 2 {
		return nil, &ErrDistanceCalculationFailed{Reason: "route needs at least two points"}
	}

	queryURL := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", c.baseURL, formatCoords(points))

	var osrmResp osrmRouteResponse
	if err := c.getJSON(ctx, queryURL, &osrmResp); err != nil {
		return nil, err
	}
	if osrmResp.Code != "Ok" || len(osrmResp.Routes) == 0 {
		return nil, &ErrDistanceCalculationFailed{Reason: fmt.Sprintf("OSRM route error: %s", osrmResp.Code)}
	}

	route := osrmResp.Routes[0]
	path := make([]models.Coordinates, len(route.Geometry.Coordinates))
	for i, lngLat := range route.Geometry.Coordinates {
		path[i] = models.Coordinates{Lat: lngLat[1], Lng: lngLat[0]}
	}

	log.Info().Str("component", "osrm").
		Int("points", len(points)).Int("path_points", len(path)).Float64("distance_m", route.Distance).
		Msg("route geometry")

	return &models.RouteGeometry{
		Path:           path,
		DistanceMeters: route.Distance,
		DurationSecs:   route.Duration,
	}, nil
}

func (c *OSRMCalculator) getJSON(ctx context.Context, queryURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return &ErrDistanceCalculationFailed{Reason: err.Error(), Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Str("component", "osrm").Err(err).Msg("OSRM API request failed")
		return &ErrDistanceCalculationFailed{Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error().Str("component", "osrm").Int("status", resp.StatusCode).Str("body", string(body)).Msg("OSRM API error")
		return &ErrDistanceCalculationFailed{
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Error().Str("component", "osrm").Err(err).Msg("failed to decode OSRM response")
		return &ErrDistanceCalculationFailed{Reason: err.Error(), Err: err}
	}

	return nil
}

// formatCoords renders points in OSRM's lng,lat;lng,lat form
func formatCoords(points []models.Coordinates) string {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}
	return strings.Join(coords, ";")
}
