package database

import (
	"context"
	"fmt"

	"route-optimizer/internal/models"
)

// CacheStore is the interface for distance cache persistence
type CacheStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	DistanceCache() DistanceCacheRepository
}

// CoordinatePair is an ordered origin/destination lookup key
type CoordinatePair struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// DistanceCacheRepository handles distance cache persistence
type DistanceCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error)
	GetBatch(ctx context.Context, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error)
	Set(ctx context.Context, entry *models.DistanceCacheEntry) error
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// CacheKey renders the lookup key used by GetBatch results
func CacheKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f",
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lng))
}
