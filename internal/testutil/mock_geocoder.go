package testutil

import (
	"context"
	"strings"
	"sync"

	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/models"
)

// MockGeocoder resolves addresses from a fixed table. Unknown addresses are
// reported as not found; entries in Failures fail with the given error.
type MockGeocoder struct {
	Addresses map[string]models.Coordinates
	Failures  map[string]error

	mu    sync.Mutex
	Calls []string
}

func NewMockGeocoder() *MockGeocoder {
	return &MockGeocoder{
		Addresses: make(map[string]models.Coordinates),
		Failures:  make(map[string]error),
	}
}

// Add registers an address
func (m *MockGeocoder) Add(address string, lat, lng float64) *MockGeocoder {
	m.Addresses[address] = models.Coordinates{Lat: lat, Lng: lng}
	return m
}

func (m *MockGeocoder) Geocode(ctx context.Context, address string) (*geocoding.GeocodingResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, address)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Failures[address]; ok {
		return nil, err
	}
	coords, ok := m.Addresses[address]
	if !ok {
		return nil, geocoding.NotFoundError(address)
	}
	return &geocoding.GeocodingResult{Coords: coords, DisplayName: address}, nil
}

func (m *MockGeocoder) GeocodeWithRetry(ctx context.Context, address string, _ int) (*geocoding.GeocodingResult, error) {
	return m.Geocode(ctx, address)
}

// Search returns registered addresses containing query, in no fixed order
func (m *MockGeocoder) Search(ctx context.Context, query string, limit int) ([]geocoding.GeocodingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var results []geocoding.GeocodingResult
	for address, coords := range m.Addresses {
		if len(results) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(address), strings.ToLower(query)) {
			results = append(results, geocoding.GeocodingResult{Coords: coords, DisplayName: address})
		}
	}
	return results, nil
}

// CallCount returns how many lookups were made
func (m *MockGeocoder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
