package database

import (
	"context"
	"sync"

	"route-optimizer/internal/models"
)

// MemoryDistanceCache is an in-process DistanceCacheRepository. It also
// satisfies CacheStore so it can stand in for the SQLite store.
type MemoryDistanceCache struct {
	mu      sync.RWMutex
	entries map[string]models.DistanceCacheEntry
	closed  bool
}

// NewMemoryDistanceCache creates an empty in-memory distance cache
func NewMemoryDistanceCache() *MemoryDistanceCache {
	return &MemoryDistanceCache{
		entries: make(map[string]models.DistanceCacheEntry),
	}
}

func (c *MemoryDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := c.entries[CacheKey(origin, dest)]
	if !ok {
		return nil, nil
	}
	// Callers get a copy so they cannot mutate cached data without the lock.
	return &entry, nil
}

func (c *MemoryDistanceCache) GetBatch(ctx context.Context, pairs []CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	result := make(map[string]*models.DistanceCacheEntry)

	for _, pair := range pairs {
		entry, err := c.Get(ctx, pair.Origin, pair.Dest)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			result[CacheKey(pair.Origin, pair.Dest)] = entry
		}
	}

	return result, nil
}

func (c *MemoryDistanceCache) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	c.entries[CacheKey(entry.Origin, entry.Destination)] = *entry
	return nil
}

func (c *MemoryDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStoreClosed
	}

	for _, entry := range entries {
		c.entries[CacheKey(entry.Origin, entry.Destination)] = entry
	}
	return nil
}

func (c *MemoryDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]models.DistanceCacheEntry)
	return nil
}

func (c *MemoryDistanceCache) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Close marks the cache closed; later reads and writes fail with ErrStoreClosed
func (c *MemoryDistanceCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MemoryDistanceCache) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrStoreClosed
	}
	return nil
}

func (c *MemoryDistanceCache) DistanceCache() DistanceCacheRepository { return c }
