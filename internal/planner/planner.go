// Package planner turns a route request into an optimized Plan: it resolves
// addresses, builds the distance matrix, runs the chosen solver and
// decorates the result with per-stop distances and road geometry.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"route-optimizer/internal/distance"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/metrics"
	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
)

// Mode selects the solver
type Mode string

const (
	ModeAnneal     Mode = "anneal"
	ModeExhaustive Mode = "exhaustive"
	ModeGreedy     Mode = "greedy"
)

// Metric selects the distance source
type Metric string

const (
	MetricRoad     Metric = "road"
	MetricGeodesic Metric = "geodesic"
)

// geocodeRetries is the attempt budget per address
const geocodeRetries = 3

// PlanRequest describes one optimization. Exactly one of Addresses and
// Waypoints is set; the first and last entries are the fixed endpoints.
type PlanRequest struct {
	Addresses []string
	Waypoints []models.Waypoint

	Mode   Mode
	Metric Metric
	Shape  optimizer.Shape

	// Anneal overrides the service's default schedule when non-nil.
	Anneal *optimizer.Config
	// Restarts overrides the default number of parallel anneals when > 0.
	Restarts int
	// Seed makes anneal runs reproducible; nil draws a fresh seed.
	Seed *uint64

	// FixedEndpoints pins the first and last waypoint in exhaustive mode.
	// The anneal and greedy modes always pin them.
	FixedEndpoints bool
	SkipGeometry   bool
}

// Options are the service-wide defaults
type Options struct {
	Anneal   optimizer.Config
	Restarts int
	// SentinelMeters, when positive, replaces unreachable pairs with this
	// distance instead of failing the request.
	SentinelMeters float64
}

// Service plans routes. It is safe for concurrent use.
type Service struct {
	geocoder geocoding.Geocoder
	calc     distance.DistanceCalculator
	geometry distance.GeometryProvider
	opts     Options
}

// NewService wires the planner. geometry may be nil to skip polylines.
func NewService(geocoder geocoding.Geocoder, calc distance.DistanceCalculator, geometry distance.GeometryProvider, opts Options) *Service {
	if opts.Restarts < 1 {
		opts.Restarts = 1
	}
	return &Service{
		geocoder: geocoder,
		calc:     calc,
		geometry: geometry,
		opts:     opts,
	}
}

// Plan runs the full request pipeline
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var warnings []string

	waypoints := req.Waypoints
	if len(req.Addresses) > 0 {
		resolved, geoWarnings, err := s.resolveAddresses(ctx, req.Addresses)
		if err != nil {
			return nil, err
		}
		waypoints = resolved
		warnings = append(warnings, geoWarnings...)
	}

	n := len(waypoints)
	if n < 2 {
		return nil, &optimizer.ErrInsufficientWaypoints{Got: n, Min: 2}
	}

	// Reject oversized exhaustive runs before spending distance lookups.
	exhaustiveOpts := optimizer.ExhaustiveOptions{Shape: req.Shape, FixedEndpoints: req.FixedEndpoints}
	if req.Mode == ModeExhaustive {
		if err := exhaustiveOpts.Validate(n); err != nil {
			return nil, err
		}
	}

	m, err := s.buildMatrix(ctx, waypoints, req.Metric)
	if err != nil {
		return nil, err
	}

	metrics.RecordPlanSize(n)

	start := time.Now()
	res, stats, err := s.solve(ctx, m, req, exhaustiveOpts)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordSolverRun(string(req.Mode), metrics.OutcomeError, elapsed)
		return nil, err
	}

	outcome := metrics.OutcomeOK
	if res.Interrupted {
		outcome = metrics.OutcomeInterrupted
		warnings = append(warnings, "optimization stopped early; returning the best route found so far")
	}
	metrics.RecordSolverRun(string(req.Mode), outcome, elapsed)
	stats.ElapsedMs = elapsed.Milliseconds()

	log.Info().Str("component", "planner").
		Str("mode", string(req.Mode)).Str("metric", string(req.Metric)).Str("shape", req.Shape.String()).
		Int("waypoints", n).Float64("length_m", res.Length).Int("iterations", res.Iterations).
		Bool("interrupted", res.Interrupted).Dur("elapsed", elapsed).
		Msg("route optimized")

	if !optimizer.IsPermutation(res.Tour, n) {
		return nil, fmt.Errorf("solver %s returned an invalid tour %v", req.Mode, res.Tour)
	}
	order := []int(res.Tour)
	if req.Shape == optimizer.ShapeClosedLoop {
		order = optimizer.Close(res.Tour)
	}
	if from, to, ok := firstUnreachableLeg(order, m); ok {
		return nil, &optimizer.ErrDistanceUnavailable{From: from, To: to, Err: errNoRoute}
	}

	plan := &models.Plan{
		Stops:      buildStops(order, waypoints, m),
		Order:      order,
		ClosedLoop: req.Shape == optimizer.ShapeClosedLoop,
		Metric:     string(req.Metric),
		Stats:      stats,
	}
	plan.TotalDistanceMeters = optimizer.TourLength(order, m)
	// Great-circle length of the same order, for judging road detours.
	if plan.StraightLineMeters, err = optimizer.TourLengthFunc(ctx, order, waypoints, distance.Geodesic); err != nil {
		return nil, err
	}

	if s.geometry != nil && !req.SkipGeometry {
		ordered := lo.Map(order, func(idx int, _ int) models.Coordinates { return waypoints[idx].Coords })
		geom, err := s.geometry.RouteGeometry(ctx, ordered)
		if err != nil {
			log.Warn().Str("component", "planner").Err(err).Msg("route geometry unavailable")
			warnings = append(warnings, fmt.Sprintf("route geometry unavailable: %v", err))
		} else {
			plan.Geometry = geom
		}
	}

	plan.Warnings = lo.Ternary(warnings == nil, []string{}, warnings)
	return plan, nil
}

func (s *Service) validate(req *PlanRequest) error {
	if len(req.Addresses) > 0 && len(req.Waypoints) > 0 {
		return &optimizer.ErrInvalidConfig{Field: "waypoints", Reason: "give either addresses or waypoints, not both"}
	}
	if got := len(req.Addresses) + len(req.Waypoints); got < 2 {
		return &optimizer.ErrInsufficientWaypoints{Got: got, Min: 2}
	}

	if req.Mode == "" {
		req.Mode = ModeAnneal
	}
	if !lo.Contains([]Mode{ModeAnneal, ModeExhaustive, ModeGreedy}, req.Mode) {
		return &optimizer.ErrInvalidConfig{Field: "mode", Reason: "must be anneal, exhaustive or greedy"}
	}

	if req.Metric == "" {
		req.Metric = MetricRoad
	}
	if !lo.Contains([]Metric{MetricRoad, MetricGeodesic}, req.Metric) {
		return &optimizer.ErrInvalidConfig{Field: "metric", Reason: "must be road or geodesic"}
	}
	if req.Metric == MetricRoad && s.calc == nil {
		return &optimizer.ErrInvalidConfig{Field: "metric", Reason: "road distances are not configured"}
	}

	if req.Shape != optimizer.ShapeOpenPath && req.Shape != optimizer.ShapeClosedLoop {
		return &optimizer.ErrInvalidConfig{Field: "shape", Reason: "must be open or closed"}
	}

	if req.Anneal != nil {
		if err := req.Anneal.Validate(); err != nil {
			return err
		}
	}
	if req.Restarts < 0 {
		return &optimizer.ErrInvalidConfig{Field: "restarts", Reason: "must not be negative"}
	}
	return nil
}

// resolveAddresses geocodes each address in order. Addresses that cannot be
// resolved are dropped with a warning. If fewer than two survive and at
// least one failure was an outage rather than a miss, the outage is returned.
func (s *Service) resolveAddresses(ctx context.Context, addresses []string) ([]models.Waypoint, []string, error) {
	if s.geocoder == nil {
		return nil, nil, &optimizer.ErrInvalidConfig{Field: "addresses", Reason: "geocoding is not configured"}
	}

	var (
		waypoints []models.Waypoint
		warnings  []string
		outage    error
		dropped   int
	)

	for i, address := range addresses {
		result, err := s.geocoder.GeocodeWithRetry(ctx, address, geocodeRetries)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if !geocoding.IsNotFound(err) {
				outage = err
			}
			dropped++
			msg := fmt.Sprintf("address %d (%q) could not be geocoded and was skipped", i+1, address)
			if i == 0 || i == len(addresses)-1 {
				msg += "; the route endpoints changed"
			}
			warnings = append(warnings, msg)
			log.Warn().Str("component", "planner").Int("index", i).Str("address", address).Err(err).Msg("dropping address")
			continue
		}

		waypoints = append(waypoints, models.Waypoint{Coords: result.Coords, Label: address})
	}

	metrics.RecordGeocodeFailures(dropped)

	if len(waypoints) < 2 && outage != nil {
		return nil, nil, &ErrGeocodingUnavailable{Err: outage}
	}
	return waypoints, warnings, nil
}

func (s *Service) buildMatrix(ctx context.Context, waypoints []models.Waypoint, metric Metric) (*optimizer.DistanceMatrix, error) {
	if metric == MetricGeodesic {
		return optimizer.BuildMatrix(ctx, waypoints, s.withSentinel(distance.Geodesic))
	}

	coords := lo.Map(waypoints, func(w models.Waypoint, _ int) models.Coordinates { return w.Coords })
	table, err := s.calc.GetDistanceMatrix(ctx, coords)
	if err == nil && len(table) != len(coords) {
		err = fmt.Errorf("distance table has %d rows, want %d", len(table), len(coords))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Str("component", "planner").Err(err).Msg("distance table failed, falling back to pairwise lookups")
		return optimizer.BuildMatrix(ctx, waypoints, s.withSentinel(distance.CalculatorFunc(s.calc)))
	}

	return optimizer.NewMatrixFromRows(s.roadRows(coords, table))
}

// roadRows mirrors the upper triangle of an OSRM-style table so the
// optimizer sees one distance per pair. A zero between distinct points means
// no route: it becomes the sentinel when one is configured, +Inf otherwise.
func (s *Service) roadRows(coords []models.Coordinates, table [][]distance.DistanceResult) [][]float64 {
	n := len(coords)
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
	}

	unreachable := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := table[i][j].DistanceMeters
			if d <= 0 && !coords[i].SamePoint(coords[j]) {
				unreachable++
				d = lo.Ternary(s.opts.SentinelMeters > 0, s.opts.SentinelMeters, math.Inf(1))
			}
			rows[i][j], rows[j][i] = d, d
		}
	}

	if unreachable > 0 {
		log.Warn().Str("component", "planner").Int("pairs", unreachable).Msg("distance table has pairs with no route")
	}
	return rows
}

func (s *Service) withSentinel(fn optimizer.DistanceFunc) optimizer.DistanceFunc {
	if s.opts.SentinelMeters > 0 {
		return distance.WithSentinel(fn, s.opts.SentinelMeters)
	}
	return fn
}

func (s *Service) solve(ctx context.Context, m *optimizer.DistanceMatrix, req PlanRequest, exhaustiveOpts optimizer.ExhaustiveOptions) (*optimizer.Result, models.SolverStats, error) {
	stats := models.SolverStats{Mode: string(req.Mode)}

	var (
		res *optimizer.Result
		err error
	)

	switch req.Mode {
	case ModeExhaustive:
		res, err = optimizer.SolveExhaustive(m, exhaustiveOpts)
	case ModeGreedy:
		res, err = optimizer.SolveGreedy(ctx, m)
	default:
		cfg := s.opts.Anneal
		if req.Anneal != nil {
			cfg = *req.Anneal
		}
		restarts := lo.Ternary(req.Restarts > 0, req.Restarts, s.opts.Restarts)
		seed := rand.Uint64()
		if req.Seed != nil {
			seed = *req.Seed
		}
		stats.Restarts = restarts
		stats.Seed = seed

		res, err = optimizer.AnnealParallel(ctx, m, cfg, restarts, seed)
		if err == nil {
			metrics.RecordMoves(res.Accepted, res.Rejected)
		}
	}
	if err != nil {
		return nil, stats, err
	}

	stats.Iterations = res.Iterations
	stats.Accepted = res.Accepted
	stats.Rejected = res.Rejected
	stats.Interrupted = res.Interrupted
	return res, stats, nil
}

// buildStops lays out the ordered stops with leg and running distances
func buildStops(order []int, waypoints []models.Waypoint, d optimizer.Distances) []models.Stop {
	legs := optimizer.Legs(order, d)
	stops := make([]models.Stop, len(order))
	cumulative := 0.0
	for k, idx := range order {
		cumulative += legs[k]
		stops[k] = models.Stop{
			Order:                    k,
			InputIndex:               idx,
			Waypoint:                 waypoints[idx],
			DistanceFromPrevMeters:   legs[k],
			CumulativeDistanceMeters: cumulative,
		}
	}
	return stops
}

// errNoRoute marks a leg the best tour could not avoid
var errNoRoute = errors.New("no route between stops")

func firstUnreachableLeg(order []int, m *optimizer.DistanceMatrix) (int, int, bool) {
	for k := 1; k < len(order); k++ {
		if m.Unreachable(order[k-1], order[k]) {
			return order[k-1], order[k], true
		}
	}
	return 0, 0, false
}

// ErrGeocodingUnavailable is returned when the geocoder failed for reasons
// other than a missing match and too few addresses resolved.
type ErrGeocodingUnavailable struct {
	Err error
}

func (e *ErrGeocodingUnavailable) Error() string {
	return fmt.Sprintf("geocoding unavailable: %v", e.Err)
}

func (e *ErrGeocodingUnavailable) Unwrap() error {
	return e.Err
}

// IsUpstreamFailure reports whether err came from an external service
// (distance or geocoding) rather than from the request itself.
func IsUpstreamFailure(err error) bool {
	var distErr *optimizer.ErrDistanceUnavailable
	var calcErr *distance.ErrDistanceCalculationFailed
	var geoErr *geocoding.ErrGeocodingFailed
	var outage *ErrGeocodingUnavailable
	return errors.As(err, &distErr) || errors.As(err, &calcErr) ||
		errors.As(err, &geoErr) || errors.As(err, &outage)
}
