package optimizer

import "fmt"

// MaxExhaustiveWaypoints bounds the number of positions the exhaustive solver
// will permute. Work grows as k! in the number of permuted positions k:
// 9! = 362 880 tours is the largest search accepted.
const MaxExhaustiveWaypoints = 9

// ExhaustiveOptions configures the brute-force solver
type ExhaustiveOptions struct {
	// Shape must be ShapeOpenPath or ShapeClosedLoop.
	Shape Shape
	// FixedEndpoints pins index 0 first and index n-1 last and permutes only
	// the interior. With it unset every position is free.
	FixedEndpoints bool
}

// Validate checks the options against a waypoint count
func (o ExhaustiveOptions) Validate(n int) error {
	if o.Shape != ShapeOpenPath && o.Shape != ShapeClosedLoop {
		return &ErrInvalidConfig{Field: "shape", Reason: "must be open or closed"}
	}
	if n < 2 {
		return &ErrInsufficientWaypoints{Got: n, Min: 2}
	}
	permuted := n
	if o.FixedEndpoints {
		permuted = n - 2
	}
	if permuted > MaxExhaustiveWaypoints {
		return &ErrInvalidConfig{
			Field:  "waypoints",
			Reason: fmt.Sprintf("%d permuted positions exceeds exhaustive limit of %d", permuted, MaxExhaustiveWaypoints),
		}
	}
	return nil
}

// SolveExhaustive evaluates every permutation in lexicographic order and
// returns the first one of minimum length. It is deterministic.
func SolveExhaustive(d Distances, opts ExhaustiveOptions) (*Result, error) {
	n := d.Len()
	if err := opts.Validate(n); err != nil {
		return nil, err
	}

	tour := identityTour(n)
	lo, hi := 0, n
	if opts.FixedEndpoints {
		lo, hi = 1, n-1
	}

	cost := func(t Tour) float64 {
		length := TourLength(t, d)
		if opts.Shape == ShapeClosedLoop {
			length += d.At(t[len(t)-1], t[0])
		}
		return length
	}

	best := make(Tour, n)
	copy(best, tour)
	bestLength := cost(tour)
	result := &Result{Iterations: 1, Accepted: 1}

	for nextPermutation(tour[lo:hi]) {
		result.Iterations++
		length := cost(tour)
		if length < bestLength {
			copy(best, tour)
			bestLength = length
			result.Accepted++
		} else {
			result.Rejected++
		}
	}

	result.Tour = best
	result.Length = bestLength
	return result, nil
}

// nextPermutation rearranges p into its lexicographic successor and reports
// whether one existed.
func nextPermutation(p []int) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	for l, r := i+1, len(p)-1; l < r; l, r = l+1, r-1 {
		p[l], p[r] = p[r], p[l]
	}
	return true
}

func identityTour(n int) Tour {
	t := make(Tour, n)
	for i := range t {
		t[i] = i
	}
	return t
}
