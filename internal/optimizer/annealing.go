package optimizer

import (
	"context"
	"math"
	"math/rand/v2"
)

// Default annealing parameters
const (
	DefaultIterations         = 1000
	DefaultInitialTemperature = 10000.0
	DefaultCoolingRate        = 0.95
)

// ctxCheckInterval is how many iterations run between context polls
const ctxCheckInterval = 256

// Config holds the annealing schedule
type Config struct {
	Iterations         int     `json:"iterations"`
	InitialTemperature float64 `json:"initial_temperature"`
	CoolingRate        float64 `json:"cooling_rate"`
}

// DefaultConfig returns the standard annealing schedule
func DefaultConfig() Config {
	return Config{
		Iterations:         DefaultIterations,
		InitialTemperature: DefaultInitialTemperature,
		CoolingRate:        DefaultCoolingRate,
	}
}

// Validate checks the schedule parameters
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return &ErrInvalidConfig{Field: "iterations", Reason: "must be positive"}
	}
	if !(c.InitialTemperature > 0) || math.IsInf(c.InitialTemperature, 0) {
		return &ErrInvalidConfig{Field: "initial_temperature", Reason: "must be a positive finite number"}
	}
	if !(c.CoolingRate > 0 && c.CoolingRate < 1) {
		return &ErrInvalidConfig{Field: "cooling_rate", Reason: "must be in (0,1)"}
	}
	return nil
}

// Temperature returns the geometric schedule value at iteration t
func (c Config) Temperature(t int) float64 {
	return c.InitialTemperature * math.Pow(c.CoolingRate, float64(t))
}

// Result is the outcome of a solver run
type Result struct {
	Tour       Tour    `json:"tour"`
	Length     float64 `json:"length"`
	Iterations int     `json:"iterations"`
	Accepted   int     `json:"accepted"`
	Rejected   int     `json:"rejected"`
	// Interrupted is set when the context expired and Tour is the best so far.
	Interrupted bool `json:"interrupted,omitempty"`
}

// TraceFunc observes each iteration of an annealing run
type TraceFunc func(iteration int, currentLength, bestLength float64)

// Annealer is a fixed-endpoint simulated-annealing solver. Index 0 stays
// first and index n-1 stays last; only interior positions are swapped.
// An Annealer is not safe for concurrent use because it owns its RNG.
type Annealer struct {
	cfg   Config
	rng   *rand.Rand
	trace TraceFunc
}

// NewAnnealer validates cfg and returns a solver drawing from rng.
// A nil rng falls back to a deterministic default stream.
func NewAnnealer(cfg Config, rng *rand.Rand) (*Annealer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand(0)
	}
	return &Annealer{cfg: cfg, rng: rng}, nil
}

// WithTrace installs an iteration observer
func (a *Annealer) WithTrace(fn TraceFunc) *Annealer {
	a.trace = fn
	return a
}

// Solve runs the anneal over d. If ctx expires mid-run the best tour so far
// is returned with Interrupted set; expiry is not an error.
func (a *Annealer) Solve(ctx context.Context, d Distances) (*Result, error) {
	n := d.Len()
	if n < 2 {
		return nil, &ErrInsufficientWaypoints{Got: n, Min: 2}
	}

	current := identityTour(n)
	interior := current[1 : n-1]

	// Fewer than two interior points leaves nothing to swap.
	if len(interior) < 2 {
		return &Result{Tour: current, Length: TourLength(current, d)}, nil
	}

	a.rng.Shuffle(len(interior), func(i, j int) {
		interior[i], interior[j] = interior[j], interior[i]
	})

	currentLength := TourLength(current, d)
	best := make(Tour, n)
	copy(best, current)
	bestLength := currentLength

	res := &Result{}
	k := len(interior)

	for t := 0; t < a.cfg.Iterations; t++ {
		if t%ctxCheckInterval == 0 && ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		temperature := a.cfg.Temperature(t)

		i := 1 + a.rng.IntN(k)
		j := 1 + a.rng.IntN(k-1)
		if j >= i {
			j++
		}
		if i > j {
			i, j = j, i
		}

		delta := swapDelta(current, i, j, d)
		if math.IsNaN(delta) {
			// Infinite legs cancel to NaN locally; compare whole tours instead.
			current[i], current[j] = current[j], current[i]
			delta = TourLength(current, d) - currentLength
			current[i], current[j] = current[j], current[i]
		}
		u := a.rng.Float64()

		if accept(delta, temperature, u) {
			current[i], current[j] = current[j], current[i]
			currentLength = advanceLength(currentLength, delta, current, d)
			res.Accepted++
		} else {
			res.Rejected++
		}

		if currentLength < bestLength {
			copy(best, current)
			bestLength = currentLength
		}

		res.Iterations++
		if a.trace != nil {
			a.trace(t, currentLength, bestLength)
		}
	}

	res.Tour = best
	// Recompute to drop accumulated floating-point drift from delta updates.
	res.Length = TourLength(best, d)
	return res, nil
}

// advanceLength applies an accepted delta, falling back to a full evaluation
// of tour when either operand is infinite and the sum would be meaningless.
func advanceLength(length, delta float64, tour Tour, d Distances) float64 {
	if math.IsInf(length, 0) || math.IsInf(delta, 0) || math.IsNaN(delta) {
		return TourLength(tour, d)
	}
	return length + delta
}

// accept applies the Metropolis criterion. At zero temperature only strictly
// improving moves pass.
func accept(delta, temperature, u float64) bool {
	if delta < 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return u < math.Exp(-delta/temperature)
}

// swapDelta is the change in open-path length from swapping positions i<j.
// Both positions must be interior so every neighbour exists.
func swapDelta(t Tour, i, j int, d Distances) float64 {
	a, x, b := t[i-1], t[i], t[i+1]
	c, y, e := t[j-1], t[j], t[j+1]

	if j == i+1 {
		// a x y e → a y x e
		return d.At(a, y) + d.At(x, e) - d.At(a, x) - d.At(y, e)
	}

	before := d.At(a, x) + d.At(x, b) + d.At(c, y) + d.At(y, e)
	after := d.At(a, y) + d.At(y, b) + d.At(c, x) + d.At(x, e)
	return after - before
}
