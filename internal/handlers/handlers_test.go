package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-optimizer/internal/database"
	"route-optimizer/internal/distance"
	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
	"route-optimizer/internal/planner"
	"route-optimizer/internal/testutil"
)

type testEnv struct {
	handler *Handler
	calc    *testutil.MockDistanceCalculator
	geo     *testutil.MockGeocoder
	store   *database.MemoryDistanceCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	calc := testutil.NewMockDistanceCalculator()
	geo := testutil.NewMockGeocoder()
	store := database.NewMemoryDistanceCache()
	svc := planner.NewService(geo, calc, calc, planner.Options{Anneal: optimizer.DefaultConfig(), Restarts: 2})

	return &testEnv{
		handler: New(svc, geo, store, 5*time.Second),
		calc:    calc,
		geo:     geo,
		store:   store,
	}
}

func postOptimize(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes/optimize", &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleOptimizeRoute(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func lineInputs() []WaypointInput {
	return []WaypointInput{
		{Lat: 0, Lng: 0, Label: "start"},
		{Lat: 0.03, Lng: 0},
		{Lat: 0.01, Lng: 0},
		{Lat: 0.02, Lng: 0},
		{Lat: 0.04, Lng: 0, Label: "end"},
	}
}

func TestHandleOptimizeRoute_Success(t *testing.T) {
	env := newTestEnv(t)
	seed := uint64(11)

	rec := postOptimize(t, env.handler, OptimizeRouteRequest{
		Waypoints: lineInputs(),
		Shape:     "open",
		Seed:      &seed,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var plan models.Plan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plan))

	assert.Equal(t, []int{0, 2, 3, 1, 4}, plan.Order)
	assert.InDelta(t, 4440.0, plan.TotalDistanceMeters, 1e-6)
	assert.Equal(t, "anneal", plan.Stats.Mode)
	assert.Equal(t, uint64(11), plan.Stats.Seed)
	assert.Equal(t, "start", plan.Stops[0].Waypoint.Label)
	assert.NotNil(t, plan.Geometry)
}

func TestHandleOptimizeRoute_Addresses(t *testing.T) {
	env := newTestEnv(t)
	env.geo.Add("1 Main St", 0, 0).Add("2 Oak Ave", 0.02, 0).Add("3 Elm Rd", 0.01, 0)

	rec := postOptimize(t, env.handler, OptimizeRouteRequest{
		Addresses: []string{"1 Main St", "2 Oak Ave", "3 Elm Rd"},
		Mode:      "exhaustive",
		Shape:     "closed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var plan models.Plan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plan))
	assert.True(t, plan.ClosedLoop)
	assert.Len(t, plan.Order, 4)
	assert.InDelta(t, 4440.0, plan.TotalDistanceMeters, 1e-6)
}

func TestHandleOptimizeRoute_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		rule string
	}{
		{"malformed json", `{"waypoints": [`, ""},
		{"unknown field", `{"shape": "open", "colour": "red"}`, ""},
		{"missing shape", OptimizeRouteRequest{Waypoints: lineInputs()}, "required"},
		{"bad shape", OptimizeRouteRequest{Waypoints: lineInputs(), Shape: "triangle"}, "oneof"},
		{"bad mode", OptimizeRouteRequest{Waypoints: lineInputs(), Shape: "open", Mode: "random"}, "oneof"},
		{"bad latitude", OptimizeRouteRequest{Waypoints: []WaypointInput{{Lat: 91}, {Lat: 0}}, Shape: "open"}, "latitude"},
		{"bad cooling", OptimizeRouteRequest{
			Waypoints: lineInputs(), Shape: "open",
			Anneal: &AnnealInput{Iterations: 10, InitialTemperature: 1, CoolingRate: 1.5},
		}, "lt"},
		{"too many restarts", OptimizeRouteRequest{Waypoints: lineInputs(), Shape: "open", Restarts: 65}, "lte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postOptimize(t, env.handler, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			detail := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", detail.Code)
			if tt.rule != "" {
				details, ok := detail.Details.([]any)
				require.True(t, ok)
				require.NotEmpty(t, details)
				assert.Equal(t, tt.rule, details[0].(map[string]any)["rule"])
			}
		})
	}
}

func TestHandleOptimizeRoute_Unprocessable(t *testing.T) {
	env := newTestEnv(t)

	t.Run("single waypoint", func(t *testing.T) {
		rec := postOptimize(t, env.handler, OptimizeRouteRequest{Waypoints: lineInputs()[:1], Shape: "open"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "INSUFFICIENT_WAYPOINTS", decodeError(t, rec).Code)
	})

	t.Run("both inputs", func(t *testing.T) {
		rec := postOptimize(t, env.handler, OptimizeRouteRequest{
			Waypoints: lineInputs(),
			Addresses: []string{"a", "b"},
			Shape:     "open",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "INVALID_CONFIG", decodeError(t, rec).Code)
	})

	t.Run("exhaustive too large", func(t *testing.T) {
		wps := make([]WaypointInput, optimizer.MaxExhaustiveWaypoints+1)
		for i := range wps {
			wps[i] = WaypointInput{Lat: float64(i) / 100}
		}
		rec := postOptimize(t, env.handler, OptimizeRouteRequest{Waypoints: wps, Mode: "exhaustive", Shape: "open"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		detail := decodeError(t, rec)
		assert.Equal(t, "INVALID_CONFIG", detail.Code)
	})
}

func TestHandleOptimizeRoute_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	in := lineInputs()
	env.calc.SetFailure(
		models.Coordinates{Lat: in[0].Lat, Lng: in[0].Lng},
		models.Coordinates{Lat: in[1].Lat, Lng: in[1].Lng},
		&distance.ErrDistanceCalculationFailed{Reason: "OSRM returned status 503"},
	)

	rec := postOptimize(t, env.handler, OptimizeRouteRequest{Waypoints: in, Shape: "open"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, rec).Code)
}

type stubPlanner struct {
	err error
}

func (s stubPlanner) Plan(ctx context.Context, _ planner.PlanRequest) (*models.Plan, error) {
	return nil, s.err
}

func TestHandlePlanError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"distance", &optimizer.ErrDistanceUnavailable{From: 0, To: 1, Err: errors.New("x")}, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"osrm deadline", &optimizer.ErrDistanceUnavailable{From: 0, To: 1, Err: &distance.ErrDistanceCalculationFailed{
			Reason: "context deadline exceeded",
			Err:    context.DeadlineExceeded,
		}}, http.StatusGatewayTimeout, "TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(stubPlanner{err: tt.err}, nil, nil, 0)
			rec := postOptimize(t, h, OptimizeRouteRequest{Waypoints: lineInputs(), Shape: "open"})

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestHandleAddressSearch(t *testing.T) {
	env := newTestEnv(t)
	env.geo.Add("221B Baker Street, London", 51.5237, -0.1585)

	search := func(q string) []AddressSuggestion {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/address-search?address="+q, nil)
		rec := httptest.NewRecorder()
		env.handler.HandleAddressSearch(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var out []AddressSuggestion
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		return out
	}

	t.Run("short query", func(t *testing.T) {
		assert.Empty(t, search("bak"))
		assert.Equal(t, 0, env.geo.CallCount())
	})

	t.Run("match", func(t *testing.T) {
		out := search("baker")
		require.Len(t, out, 1)
		assert.Equal(t, "221B Baker Street, London", out[0].DisplayName)
		assert.Equal(t, 51.5237, out[0].Lat)
	})
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Set(context.Background(), &models.DistanceCacheEntry{
		Origin:         models.Coordinates{Lat: 1, Lng: 1},
		Destination:    models.Coordinates{Lat: 2, Lng: 2},
		DistanceMeters: 10,
	}))

	rec := httptest.NewRecorder()
	env.handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.CachedRoutes)

	require.NoError(t, env.store.Close())
	rec = httptest.NewRecorder()
	env.handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
