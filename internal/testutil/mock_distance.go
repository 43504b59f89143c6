package testutil

import (
	"context"
	"fmt"
	"math"
	"sync"

	"route-optimizer/internal/distance"
	"route-optimizer/internal/models"
)

// DistanceCall tracks a call to the distance calculator
type DistanceCall struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// MockDistanceCalculator is a mock DistanceCalculator and GeometryProvider.
// It returns scaled Euclidean distance between coordinates for deterministic tests.
type MockDistanceCalculator struct {
	ScaleFactor float64
	Overrides   map[string]*distance.DistanceResult
	Failures    map[string]error
	// MatrixErr, when set, is returned by GetDistanceMatrix.
	MatrixErr error
	// GeometryErr, when set, is returned by RouteGeometry.
	GeometryErr error

	mu            sync.Mutex
	Calls         []DistanceCall
	MatrixCalls   int
	GeometryCalls [][]models.Coordinates
}

func NewMockDistanceCalculator() *MockDistanceCalculator {
	return &MockDistanceCalculator{
		ScaleFactor: 111000, // 1 degree ≈ 111km in meters
		Overrides:   make(map[string]*distance.DistanceResult),
		Failures:    make(map[string]error),
	}
}

func (m *MockDistanceCalculator) makeKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", origin.Lat, origin.Lng, dest.Lat, dest.Lng)
}

// SetDistance sets a custom distance for a specific origin-destination pair
func (m *MockDistanceCalculator) SetDistance(origin, dest models.Coordinates, distMeters, durSecs float64) {
	m.Overrides[m.makeKey(origin, dest)] = &distance.DistanceResult{
		DistanceMeters: distMeters,
		DurationSecs:   durSecs,
	}
}

// SetFailure makes lookups for a specific origin-destination pair fail
func (m *MockDistanceCalculator) SetFailure(origin, dest models.Coordinates, err error) {
	m.Failures[m.makeKey(origin, dest)] = err
}

func (m *MockDistanceCalculator) euclideanDistance(origin, dest models.Coordinates) float64 {
	dLat := dest.Lat - origin.Lat
	dLng := dest.Lng - origin.Lng
	return math.Sqrt(dLat*dLat+dLng*dLng) * m.ScaleFactor
}

func (m *MockDistanceCalculator) GetDistance(ctx context.Context, origin, dest models.Coordinates) (*distance.DistanceResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, DistanceCall{Origin: origin, Dest: dest})
	m.mu.Unlock()

	return m.lookup(origin, dest)
}

func (m *MockDistanceCalculator) lookup(origin, dest models.Coordinates) (*distance.DistanceResult, error) {
	key := m.makeKey(origin, dest)
	if err, ok := m.Failures[key]; ok {
		return nil, err
	}
	if override, ok := m.Overrides[key]; ok {
		return override, nil
	}

	if origin.SamePoint(dest) {
		return &distance.DistanceResult{}, nil
	}

	dist := m.euclideanDistance(origin, dest)
	// Assume average speed of 50 km/h for duration
	dur := dist / 50000 * 3600

	return &distance.DistanceResult{
		DistanceMeters: dist,
		DurationSecs:   dur,
	}, nil
}

// GetDistanceMatrix answers from the same table as GetDistance without
// recording pair calls. Any pair failure fails the whole table.
func (m *MockDistanceCalculator) GetDistanceMatrix(ctx context.Context, points []models.Coordinates) ([][]distance.DistanceResult, error) {
	m.mu.Lock()
	m.MatrixCalls++
	m.mu.Unlock()

	if m.MatrixErr != nil {
		return nil, m.MatrixErr
	}

	n := len(points)
	matrix := make([][]distance.DistanceResult, n)
	for i := range matrix {
		matrix[i] = make([]distance.DistanceResult, n)
		for j := range matrix[i] {
			if i == j {
				continue
			}
			result, err := m.lookup(points[i], points[j])
			if err != nil {
				return nil, err
			}
			matrix[i][j] = *result
		}
	}

	return matrix, nil
}

func (m *MockDistanceCalculator) GetDistancesFromPoint(ctx context.Context, origin models.Coordinates, destinations []models.Coordinates) ([]distance.DistanceResult, error) {
	results := make([]distance.DistanceResult, len(destinations))
	for i, dest := range destinations {
		result, err := m.GetDistance(ctx, origin, dest)
		if err != nil {
			return nil, err
		}
		results[i] = *result
	}
	return results, nil
}

// RouteGeometry returns the input points as a straight-line path
func (m *MockDistanceCalculator) RouteGeometry(ctx context.Context, points []models.Coordinates) (*models.RouteGeometry, error) {
	m.mu.Lock()
	m.GeometryCalls = append(m.GeometryCalls, append([]models.Coordinates(nil), points...))
	m.mu.Unlock()

	if m.GeometryErr != nil {
		return nil, m.GeometryErr
	}

	total := 0.0
	for i := 1; i < len(points); i++ {
		total += m.euclideanDistance(points[i-1], points[i])
	}
	return &models.RouteGeometry{
		Path:           append([]models.Coordinates(nil), points...),
		DistanceMeters: total,
		DurationSecs:   total / 50000 * 3600,
	}, nil
}

// CallCount returns the number of GetDistance calls so far
func (m *MockDistanceCalculator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// ResetCalls clears the recorded calls
func (m *MockDistanceCalculator) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.MatrixCalls = 0
	m.GeometryCalls = nil
}
