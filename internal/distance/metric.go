package distance

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"route-optimizer/internal/models"
	"route-optimizer/internal/optimizer"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distance
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points
func HaversineMeters(a, b models.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLat := toRadians(b.Lat - a.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Geodesic is a DistanceFunc over great-circle distance. It never fails.
func Geodesic(_ context.Context, a, b models.Coordinates) (float64, error) {
	return HaversineMeters(a, b), nil
}

// CalculatorFunc adapts a DistanceCalculator to a DistanceFunc returning
// road distance in metres.
func CalculatorFunc(calc DistanceCalculator) optimizer.DistanceFunc {
	return func(ctx context.Context, a, b models.Coordinates) (float64, error) {
		res, err := calc.GetDistance(ctx, a, b)
		if err != nil {
			return 0, err
		}
		return res.DistanceMeters, nil
	}
}

// WithSentinel wraps fn so failures yield sentinel instead of an error.
// Unreachable pairs then look very expensive to the optimizer rather than
// aborting the request. Context cancellation is still returned as an error.
func WithSentinel(fn optimizer.DistanceFunc, sentinel float64) optimizer.DistanceFunc {
	return func(ctx context.Context, a, b models.Coordinates) (float64, error) {
		d, err := fn(ctx, a, b)
		if err == nil {
			return d, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Warn().Str("component", "distance").Err(err).
			Float64("sentinel", sentinel).
			Msg("distance unavailable, substituting sentinel")
		return sentinel, nil
	}
}
