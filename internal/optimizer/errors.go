package optimizer

import "fmt"

// ErrInvalidConfig is returned when solver parameters are out of range.
// It is raised before any work starts.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid solver config: %s %s", e.Field, e.Reason)
}

// ErrInsufficientWaypoints is returned when there are too few waypoints to route
type ErrInsufficientWaypoints struct {
	Got int
	Min int
}

func (e *ErrInsufficientWaypoints) Error() string {
	return fmt.Sprintf("insufficient waypoints: got %d, need at least %d", e.Got, e.Min)
}

// ErrDistanceUnavailable is returned when the distance source fails for a pair
type ErrDistanceUnavailable struct {
	From int
	To   int
	Err  error
}

func (e *ErrDistanceUnavailable) Error() string {
	return fmt.Sprintf("distance unavailable between waypoints %d and %d: %v", e.From, e.To, e.Err)
}

func (e *ErrDistanceUnavailable) Unwrap() error {
	return e.Err
}
