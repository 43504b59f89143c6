package models

import "math"

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds a coordinate to 5 decimal places (~1m precision).
// Cache keys and same-point checks use this precision.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// SamePoint reports whether two coordinates are equal at cache precision
func (c Coordinates) SamePoint(o Coordinates) bool {
	return RoundCoordinate(c.Lat) == RoundCoordinate(o.Lat) &&
		RoundCoordinate(c.Lng) == RoundCoordinate(o.Lng)
}

// Waypoint is a stop to visit. Identity is its index in the input sequence,
// so two waypoints with identical coordinates stay distinct.
type Waypoint struct {
	Coords Coordinates `json:"coords"`
	Label  string      `json:"label,omitempty"`
}

// GetCoords returns the coordinates of the waypoint
func (w *Waypoint) GetCoords() Coordinates {
	return w.Coords
}

// Stop is a waypoint placed in an optimized route
type Stop struct {
	Order                    int      `json:"order"`
	InputIndex               int      `json:"input_index"`
	Waypoint                 Waypoint `json:"waypoint"`
	DistanceFromPrevMeters   float64  `json:"distance_from_prev_meters"`
	CumulativeDistanceMeters float64  `json:"cumulative_distance_meters"`
}

// RouteGeometry is the road polyline through an ordered set of waypoints
type RouteGeometry struct {
	Path           []Coordinates `json:"path"`
	DistanceMeters float64       `json:"distance_meters"`
	DurationSecs   float64       `json:"duration_secs"`
}

// SolverStats carries solver diagnostics
type SolverStats struct {
	Mode        string `json:"mode"`
	Iterations  int    `json:"iterations"`
	Accepted    int    `json:"accepted"`
	Rejected    int    `json:"rejected"`
	Restarts    int    `json:"restarts,omitempty"`
	Seed        uint64 `json:"seed,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// Plan contains the full result of a route optimization
type Plan struct {
	Stops               []Stop         `json:"stops"`
	Order               []int          `json:"order"`
	TotalDistanceMeters float64        `json:"total_distance_meters"`
	StraightLineMeters  float64        `json:"straight_line_meters"`
	ClosedLoop          bool           `json:"closed_loop"`
	Metric              string         `json:"metric"`
	Geometry            *RouteGeometry `json:"geometry,omitempty"`
	Stats               SolverStats    `json:"stats"`
	Warnings            []string       `json:"warnings"`
}

// DistanceCacheEntry represents a cached distance lookup
type DistanceCacheEntry struct {
	Origin         Coordinates `json:"origin"`
	Destination    Coordinates `json:"destination"`
	DistanceMeters float64     `json:"distance_meters"`
	DurationSecs   float64     `json:"duration_secs"`
}
