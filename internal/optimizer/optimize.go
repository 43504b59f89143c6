package optimizer

import (
	"context"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"route-optimizer/internal/models"
)

// OptimizeFixedEndpoints orders the interior waypoints to minimize the open
// path length from waypoints[0] to waypoints[n-1].
func OptimizeFixedEndpoints(ctx context.Context, waypoints []models.Waypoint, fn DistanceFunc, cfg Config, rng *rand.Rand) (*Result, error) {
	annealer, err := NewAnnealer(cfg, rng)
	if err != nil {
		return nil, err
	}
	if len(waypoints) < 2 {
		return nil, &ErrInsufficientWaypoints{Got: len(waypoints), Min: 2}
	}

	m, err := BuildMatrix(ctx, waypoints, fn)
	if err != nil {
		return nil, err
	}

	return annealer.Solve(ctx, m)
}

// OptimizeExhaustive searches every ordering of a small waypoint set.
// See MaxExhaustiveWaypoints for the size bound.
func OptimizeExhaustive(ctx context.Context, waypoints []models.Waypoint, fn DistanceFunc, opts ExhaustiveOptions) (*Result, error) {
	if err := opts.Validate(len(waypoints)); err != nil {
		return nil, err
	}

	m, err := BuildMatrix(ctx, waypoints, fn)
	if err != nil {
		return nil, err
	}

	return SolveExhaustive(m, opts)
}

// AnnealParallel runs independent anneals on derived seeds and keeps the
// shortest tour. Ties go to the lowest restart index, so the outcome depends
// only on seed and not on scheduling.
func AnnealParallel(ctx context.Context, d Distances, cfg Config, restarts int, seed uint64) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if restarts < 1 {
		return nil, &ErrInvalidConfig{Field: "restarts", Reason: "must be at least 1"}
	}
	if d.Len() < 2 {
		return nil, &ErrInsufficientWaypoints{Got: d.Len(), Min: 2}
	}

	results := make([]*Result, restarts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for r := 0; r < restarts; r++ {
		g.Go(func() error {
			annealer, err := NewAnnealer(cfg, NewRand(DeriveSeed(seed, uint64(r))))
			if err != nil {
				return err
			}
			res, err := annealer.Solve(gctx, d)
			if err != nil {
				return err
			}
			results[r] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *Result
	total := Result{}
	for _, res := range results {
		total.Iterations += res.Iterations
		total.Accepted += res.Accepted
		total.Rejected += res.Rejected
		total.Interrupted = total.Interrupted || res.Interrupted
		if best == nil || res.Length < best.Length {
			best = res
		}
	}

	total.Tour = best.Tour
	total.Length = best.Length
	return &total, nil
}
