package optimizer

import (
	"context"

	"github.com/samber/lo"

	"route-optimizer/internal/models"
)

// Tour is an ordered sequence of waypoint indices
type Tour []int

// Shape selects whether a route returns to its start.
// The zero value is deliberately invalid so callers must choose.
type Shape int

const (
	ShapeUnspecified Shape = iota
	ShapeOpenPath          // start → … → end
	ShapeClosedLoop        // start → … → start
)

func (s Shape) String() string {
	switch s {
	case ShapeOpenPath:
		return "open"
	case ShapeClosedLoop:
		return "closed"
	default:
		return "unspecified"
	}
}

// ParseShape converts "open"/"closed" to a Shape
func ParseShape(s string) (Shape, error) {
	switch s {
	case "open":
		return ShapeOpenPath, nil
	case "closed":
		return ShapeClosedLoop, nil
	default:
		return ShapeUnspecified, &ErrInvalidConfig{Field: "shape", Reason: "must be \"open\" or \"closed\""}
	}
}

// TourLength sums the distances between consecutive tour positions.
// No closing edge is added; use Close for a loop.
func TourLength(tour Tour, d Distances) float64 {
	total := 0.0
	for i := 1; i < len(tour); i++ {
		total += d.At(tour[i-1], tour[i])
	}
	return total
}

// Close returns a copy of tour with its first index appended
func Close(tour Tour) Tour {
	if len(tour) == 0 {
		return Tour{}
	}
	closed := make(Tour, len(tour)+1)
	copy(closed, tour)
	closed[len(tour)] = tour[0]
	return closed
}

// TourLengthFunc evaluates a tour directly against a distance function
func TourLengthFunc(ctx context.Context, tour Tour, waypoints []models.Waypoint, fn DistanceFunc) (float64, error) {
	total := 0.0
	for i := 1; i < len(tour); i++ {
		from, to := tour[i-1], tour[i]
		d, err := fn(ctx, waypoints[from].Coords, waypoints[to].Coords)
		if err != nil {
			return 0, &ErrDistanceUnavailable{From: from, To: to, Err: err}
		}
		if err := checkDistance(d); err != nil {
			return 0, &ErrDistanceUnavailable{From: from, To: to, Err: err}
		}
		total += d
	}
	return total, nil
}

// Legs returns the distance of each leg, leg i ending at tour[i]; legs[0] is 0
func Legs(tour Tour, d Distances) []float64 {
	legs := make([]float64, len(tour))
	for i := 1; i < len(tour); i++ {
		legs[i] = d.At(tour[i-1], tour[i])
	}
	return legs
}

// IsPermutation reports whether tour holds every index in [0,n) exactly once
func IsPermutation(tour Tour, n int) bool {
	return len(tour) == n &&
		lo.EveryBy(tour, func(idx int) bool { return idx >= 0 && idx < n }) &&
		len(lo.Uniq(tour)) == n
}
