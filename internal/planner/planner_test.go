package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
	"route-optimizer/internal/testutil"
)

// Collinear stops along a meridian, given out of order. The best route
// visits them by latitude.
func lineWaypoints() []models.Waypoint {
	return []models.Waypoint{
		{Coords: models.Coordinates{Lat: 0, Lng: 0}, Label: "start"},
		{Coords: models.Coordinates{Lat: 0.03, Lng: 0}, Label: "c"},
		{Coords: models.Coordinates{Lat: 0.01, Lng: 0}, Label: "a"},
		{Coords: models.Coordinates{Lat: 0.02, Lng: 0}, Label: "b"},
		{Coords: models.Coordinates{Lat: 0.04, Lng: 0}, Label: "end"},
	}
}

var lineOrder = []int{0, 2, 3, 1, 4}

// 0.04 degrees at the mock's 111km per degree
const lineLength = 4440.0

func newTestService(t *testing.T, opts Options) (*Service, *testutil.MockDistanceCalculator, *testutil.MockGeocoder) {
	t.Helper()
	calc := testutil.NewMockDistanceCalculator()
	geo := testutil.NewMockGeocoder()
	if opts.Anneal == (optimizer.Config{}) {
		opts.Anneal = optimizer.DefaultConfig()
	}
	return NewService(geo, calc, calc, opts), calc, geo
}

func seed(v uint64) *uint64 { return &v }

func TestPlan_AllModesFindLineOrder(t *testing.T) {
	svc, _, _ := newTestService(t, Options{Restarts: 2})

	for _, mode := range []Mode{ModeAnneal, ModeExhaustive, ModeGreedy} {
		t.Run(string(mode), func(t *testing.T) {
			plan, err := svc.Plan(context.Background(), PlanRequest{
				Waypoints:      lineWaypoints(),
				Mode:           mode,
				Shape:          optimizer.ShapeOpenPath,
				FixedEndpoints: true,
				Seed:           seed(1),
			})
			require.NoError(t, err)

			assert.Equal(t, lineOrder, plan.Order)
			assert.InDelta(t, lineLength, plan.TotalDistanceMeters, 1e-6)
			assert.Equal(t, string(mode), plan.Stats.Mode)
			assert.Equal(t, "road", plan.Metric)
			assert.False(t, plan.ClosedLoop)
			assert.Empty(t, plan.Warnings)
			require.NotNil(t, plan.Geometry)
			assert.Len(t, plan.Geometry.Path, 5)
		})
	}
}

func TestPlan_StopsCarryLegAndCumulativeDistances(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})
	require.NoError(t, err)
	require.Len(t, plan.Stops, 5)

	assert.Equal(t, 0.0, plan.Stops[0].DistanceFromPrevMeters)
	for k, stop := range plan.Stops {
		assert.Equal(t, k, stop.Order)
		assert.Equal(t, lineOrder[k], stop.InputIndex)
		assert.Equal(t, lineWaypoints()[lineOrder[k]], stop.Waypoint)
		if k > 0 {
			assert.InDelta(t, 1110.0, stop.DistanceFromPrevMeters, 1e-6)
		}
	}
	assert.InDelta(t, plan.TotalDistanceMeters, plan.Stops[4].CumulativeDistanceMeters, 1e-6)
}

func TestPlan_ClosedLoopReturnsToStart(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeAnneal,
		Shape:     optimizer.ShapeClosedLoop,
		Seed:      seed(7),
	})
	require.NoError(t, err)

	assert.True(t, plan.ClosedLoop)
	assert.Equal(t, []int{0, 2, 3, 1, 4, 0}, plan.Order)
	assert.InDelta(t, 2*lineLength, plan.TotalDistanceMeters, 1e-6)
	assert.Equal(t, 0, plan.Stops[5].InputIndex)
}

func TestPlan_ExhaustiveClosedLoopFreeEndpoints(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeExhaustive,
		Shape:     optimizer.ShapeClosedLoop,
	})
	require.NoError(t, err)

	assert.InDelta(t, 2*lineLength, plan.TotalDistanceMeters, 1e-6)
	assert.Len(t, plan.Order, 6)
	assert.Equal(t, plan.Order[0], plan.Order[5])
}

func TestPlan_SeedMakesAnnealReproducible(t *testing.T) {
	svc, _, _ := newTestService(t, Options{Restarts: 3})
	req := PlanRequest{
		Waypoints: lineWaypoints(),
		Shape:     optimizer.ShapeOpenPath,
		Seed:      seed(42),
	}

	first, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Plan(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, first.Stats.Accepted, second.Stats.Accepted)
	assert.Equal(t, uint64(42), first.Stats.Seed)
	assert.Equal(t, 3, first.Stats.Restarts)
	assert.Equal(t, "anneal", first.Stats.Mode)
	assert.Equal(t, 3*optimizer.DefaultIterations, first.Stats.Iterations)
}

func TestPlan_RequestOverridesAnnealDefaults(t *testing.T) {
	svc, _, _ := newTestService(t, Options{Restarts: 4})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Shape:     optimizer.ShapeOpenPath,
		Anneal:    &optimizer.Config{Iterations: 50, InitialTemperature: 10, CoolingRate: 0.9},
		Restarts:  1,
		Seed:      seed(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 50, plan.Stats.Iterations)
	assert.Equal(t, 1, plan.Stats.Restarts)
}

func TestPlan_GeodesicSkipsRoadLookups(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints:    lineWaypoints(),
		Mode:         ModeGreedy,
		Metric:       MetricGeodesic,
		Shape:        optimizer.ShapeOpenPath,
		SkipGeometry: true,
	})
	require.NoError(t, err)

	assert.Equal(t, lineOrder, plan.Order)
	assert.InDelta(t, 4447.8, plan.TotalDistanceMeters, 1.0)
	assert.InDelta(t, plan.TotalDistanceMeters, plan.StraightLineMeters, 1e-9)
	assert.Equal(t, "geodesic", plan.Metric)
	assert.Nil(t, plan.Geometry)
	assert.Equal(t, 0, calc.CallCount())
	assert.Equal(t, 0, calc.MatrixCalls)
	assert.Empty(t, calc.GeometryCalls)
}

func TestPlan_RoadMetricUsesOneTable(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})
	require.NoError(t, err)

	assert.Equal(t, lineOrder, plan.Order)
	assert.InDelta(t, 4447.8, plan.StraightLineMeters, 1.0)
	assert.Equal(t, 1, calc.MatrixCalls)
	assert.Equal(t, 0, calc.CallCount(), "no pairwise lookups when the table succeeds")
}

func TestPlan_TableFailureFallsBackToPairs(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})
	calc.MatrixErr = errors.New("table service down")

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})
	require.NoError(t, err)
	assert.Equal(t, lineOrder, plan.Order)
	// One lookup per unordered pair.
	assert.Equal(t, 10, calc.CallCount())
}

func TestPlan_TableGapIsRoutedAround(t *testing.T) {
	wps := lineWaypoints()
	svc, calc, _ := newTestService(t, Options{})
	// a and b have no road between them in the table.
	calc.SetDistance(wps[2].Coords, wps[3].Coords, 0, 0)

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints:      wps,
		Mode:           ModeExhaustive,
		Shape:          optimizer.ShapeOpenPath,
		FixedEndpoints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 1, 3, 4}, plan.Order)
	assert.InDelta(t, 1110*6, plan.TotalDistanceMeters, 1e-6)
	assert.Equal(t, 0, calc.CallCount())
}

func TestPlan_UnavoidableGapFails(t *testing.T) {
	wps := lineWaypoints()[:2]
	svc, calc, _ := newTestService(t, Options{})
	calc.SetDistance(wps[0].Coords, wps[1].Coords, 0, 0)

	_, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: wps,
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})

	var distErr *optimizer.ErrDistanceUnavailable
	require.ErrorAs(t, err, &distErr)
	assert.Equal(t, 0, distErr.From)
	assert.Equal(t, 1, distErr.To)
	assert.True(t, IsUpstreamFailure(err))
}

func TestPlan_CancelledTableIsNotRetriedPairwise(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})
	calc.MatrixErr = errors.New("table service down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Plan(ctx, PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calc.CallCount())
}

func TestPlan_DistanceFailure(t *testing.T) {
	wps := lineWaypoints()

	t.Run("fails without sentinel", func(t *testing.T) {
		svc, calc, _ := newTestService(t, Options{})
		calc.SetFailure(wps[0].Coords, wps[1].Coords, errors.New("no route"))

		_, err := svc.Plan(context.Background(), PlanRequest{
			Waypoints: wps,
			Mode:      ModeGreedy,
			Shape:     optimizer.ShapeOpenPath,
		})

		var distErr *optimizer.ErrDistanceUnavailable
		require.ErrorAs(t, err, &distErr)
		assert.Equal(t, 0, distErr.From)
		assert.Equal(t, 1, distErr.To)
		assert.True(t, IsUpstreamFailure(err))
	})

	t.Run("sentinel keeps the plan going", func(t *testing.T) {
		svc, calc, _ := newTestService(t, Options{SentinelMeters: 1e7})
		calc.SetFailure(wps[0].Coords, wps[1].Coords, errors.New("no route"))

		plan, err := svc.Plan(context.Background(), PlanRequest{
			Waypoints:      wps,
			Mode:           ModeExhaustive,
			Shape:          optimizer.ShapeOpenPath,
			FixedEndpoints: true,
		})
		require.NoError(t, err)
		// The sentinel edge is never worth taking here.
		assert.Equal(t, lineOrder, plan.Order)
	})
}

func TestPlan_GeometryFailureBecomesWarning(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})
	calc.GeometryErr = errors.New("route service down")

	plan, err := svc.Plan(context.Background(), PlanRequest{
		Waypoints: lineWaypoints(),
		Mode:      ModeGreedy,
		Shape:     optimizer.ShapeOpenPath,
	})
	require.NoError(t, err)

	assert.Nil(t, plan.Geometry)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "geometry")
}

func TestPlan_Addresses(t *testing.T) {
	t.Run("resolves in order", func(t *testing.T) {
		svc, _, geo := newTestService(t, Options{})
		geo.Add("home", 0, 0).Add("shop", 0.02, 0).Add("office", 0.04, 0)

		plan, err := svc.Plan(context.Background(), PlanRequest{
			Addresses: []string{"home", "shop", "office"},
			Mode:      ModeGreedy,
			Shape:     optimizer.ShapeOpenPath,
		})
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1, 2}, plan.Order)
		assert.Equal(t, "shop", plan.Stops[1].Waypoint.Label)
		assert.Equal(t, 3, geo.CallCount())
	})

	t.Run("unresolved addresses become warnings", func(t *testing.T) {
		svc, _, geo := newTestService(t, Options{})
		geo.Add("home", 0, 0).Add("office", 0.04, 0)

		plan, err := svc.Plan(context.Background(), PlanRequest{
			Addresses: []string{"home", "nowhere", "office"},
			Mode:      ModeGreedy,
			Shape:     optimizer.ShapeOpenPath,
		})
		require.NoError(t, err)

		assert.Len(t, plan.Stops, 2)
		require.Len(t, plan.Warnings, 1)
		assert.Contains(t, plan.Warnings[0], "nowhere")
	})

	t.Run("too few resolved", func(t *testing.T) {
		svc, _, geo := newTestService(t, Options{})
		geo.Add("home", 0, 0)

		_, err := svc.Plan(context.Background(), PlanRequest{
			Addresses: []string{"home", "nowhere"},
			Shape:     optimizer.ShapeOpenPath,
		})

		var fewErr *optimizer.ErrInsufficientWaypoints
		require.ErrorAs(t, err, &fewErr)
		assert.Equal(t, 1, fewErr.Got)
	})

	t.Run("outage surfaces as upstream failure", func(t *testing.T) {
		svc, _, geo := newTestService(t, Options{})
		geo.Add("home", 0, 0)
		geo.Failures["office"] = errors.New("connection refused")

		_, err := svc.Plan(context.Background(), PlanRequest{
			Addresses: []string{"home", "office"},
			Shape:     optimizer.ShapeOpenPath,
		})
		var outage *ErrGeocodingUnavailable
		require.ErrorAs(t, err, &outage)
		assert.ErrorContains(t, err, "connection refused")
		assert.True(t, IsUpstreamFailure(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, _, geo := newTestService(t, Options{})
		geo.Add("home", 0, 0).Add("office", 0.04, 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.Plan(ctx, PlanRequest{
			Addresses: []string{"home", "office"},
			Shape:     optimizer.ShapeOpenPath,
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPlan_Validation(t *testing.T) {
	svc, calc, _ := newTestService(t, Options{})
	wps := lineWaypoints()

	tests := []struct {
		name  string
		req   PlanRequest
		field string
	}{
		{"both inputs", PlanRequest{Waypoints: wps, Addresses: []string{"a", "b"}, Shape: optimizer.ShapeOpenPath}, "waypoints"},
		{"bad mode", PlanRequest{Waypoints: wps, Mode: "random", Shape: optimizer.ShapeOpenPath}, "mode"},
		{"bad metric", PlanRequest{Waypoints: wps, Metric: "crow", Shape: optimizer.ShapeOpenPath}, "metric"},
		{"missing shape", PlanRequest{Waypoints: wps}, "shape"},
		{"bad anneal", PlanRequest{Waypoints: wps, Shape: optimizer.ShapeOpenPath, Anneal: &optimizer.Config{}}, "iterations"},
		{"negative restarts", PlanRequest{Waypoints: wps, Shape: optimizer.ShapeOpenPath, Restarts: -1}, "restarts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Plan(context.Background(), tt.req)

			var cfgErr *optimizer.ErrInvalidConfig
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("single waypoint", func(t *testing.T) {
		_, err := svc.Plan(context.Background(), PlanRequest{Waypoints: wps[:1], Shape: optimizer.ShapeOpenPath})
		var fewErr *optimizer.ErrInsufficientWaypoints
		assert.ErrorAs(t, err, &fewErr)
	})

	t.Run("oversized exhaustive fails before lookups", func(t *testing.T) {
		calc.ResetCalls()
		big := make([]models.Waypoint, optimizer.MaxExhaustiveWaypoints+1)
		for i := range big {
			big[i] = models.Waypoint{Coords: models.Coordinates{Lat: float64(i) / 100}}
		}

		_, err := svc.Plan(context.Background(), PlanRequest{Waypoints: big, Mode: ModeExhaustive, Shape: optimizer.ShapeOpenPath})
		var cfgErr *optimizer.ErrInvalidConfig
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, 0, calc.CallCount())
		assert.Equal(t, 0, calc.MatrixCalls)
	})
}

func TestPlan_CancelledAnnealReturnsBestSoFar(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Geodesic avoids the road lookups that would fail on a dead context.
	plan, err := svc.Plan(ctx, PlanRequest{
		Waypoints:    lineWaypoints(),
		Metric:       MetricGeodesic,
		Shape:        optimizer.ShapeOpenPath,
		SkipGeometry: true,
		Seed:         seed(1),
	})
	require.NoError(t, err)

	assert.True(t, plan.Stats.Interrupted)
	assert.Equal(t, 0, plan.Order[0])
	assert.Equal(t, 4, plan.Order[4])
	assert.NotEmpty(t, plan.Warnings)
}
