package optimizer

import "context"

// improvementEpsilon guards 2-opt against cycling on floating-point noise
const improvementEpsilon = 1e-9

// SolveGreedy builds a fixed-endpoint tour by cheapest insertion and then
// applies 2-opt segment reversals until no reversal shortens it. It is
// deterministic and much faster than annealing, at the cost of stopping at
// the first local optimum. Iterations counts reversal passes and Accepted
// counts applied reversals.
func SolveGreedy(ctx context.Context, d Distances) (*Result, error) {
	n := d.Len()
	if n < 2 {
		return nil, &ErrInsufficientWaypoints{Got: n, Min: 2}
	}

	tour := cheapestInsertion(d)
	res := &Result{}

	for improved := true; improved; {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		improved = false
		res.Iterations++

		// Positions 0 and n-1 never move.
		for i := 1; i < n-2; i++ {
			for j := i + 1; j < n-1; j++ {
				if reversalDelta(tour, i, j, d) < -improvementEpsilon {
					reverseSegment(tour, i, j)
					res.Accepted++
					improved = true
				}
			}
		}
	}

	res.Tour = tour
	res.Length = TourLength(tour, d)
	return res, nil
}

// cheapestInsertion grows the path start→end by repeatedly inserting the
// waypoint whose best insertion adds the least length. Ties keep the lowest
// waypoint index and the earliest position.
func cheapestInsertion(d Distances) Tour {
	n := d.Len()
	tour := make(Tour, 0, n)
	tour = append(tour, 0, n-1)
	if n == 2 {
		return tour
	}

	pending := make([]int, 0, n-2)
	for i := 1; i < n-1; i++ {
		pending = append(pending, i)
	}

	for len(pending) > 0 {
		bestP, bestPos := -1, -1
		bestCost := 0.0

		for pi, p := range pending {
			for pos := 1; pos < len(tour); pos++ {
				prev, next := tour[pos-1], tour[pos]
				cost := d.At(prev, p) + d.At(p, next) - d.At(prev, next)
				if bestP < 0 || cost < bestCost {
					bestP, bestPos, bestCost = pi, pos, cost
				}
			}
		}

		p := pending[bestP]
		pending = append(pending[:bestP], pending[bestP+1:]...)
		tour = insertAt(tour, p, bestPos)
	}

	return tour
}

// reversalDelta is the change in open-path length from reversing t[i..j].
// Requires 1 <= i < j <= len(t)-2.
func reversalDelta(t Tour, i, j int, d Distances) float64 {
	a, b := t[i-1], t[i]
	c, e := t[j], t[j+1]
	return d.At(a, c) + d.At(b, e) - d.At(a, b) - d.At(c, e)
}

func reverseSegment(t Tour, i, j int) {
	for i < j {
		t[i], t[j] = t[j], t[i]
		i++
		j--
	}
}

func insertAt(t Tour, v, pos int) Tour {
	t = append(t, 0)
	copy(t[pos+1:], t[pos:])
	t[pos] = v
	return t
}
