package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"route-optimizer/internal/database"
	"route-optimizer/internal/models"
)

const (
	selectDistanceSQL = `SELECT origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs
		FROM distance_cache
		WHERE origin_lat = ? AND origin_lng = ? AND dest_lat = ? AND dest_lng = ?`

	// Replacing a row refreshes cached_at.
	upsertDistanceSQL = `INSERT OR REPLACE INTO distance_cache
		(origin_lat, origin_lng, dest_lat, dest_lng, distance_meters, duration_secs, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
)

type distanceCacheRepository struct {
	store *Store
}

// roundedKey returns the primary key columns for an origin/destination pair
func roundedKey(origin, dest models.Coordinates) []any {
	return []any{
		models.RoundCoordinate(origin.Lat),
		models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat),
		models.RoundCoordinate(dest.Lng),
	}
}

func upsertArgs(e *models.DistanceCacheEntry) []any {
	return append(roundedKey(e.Origin, e.Destination), e.DistanceMeters, e.DurationSecs)
}

// scanEntry reads one row; a missing row yields (nil, nil)
func scanEntry(row *sql.Row) (*models.DistanceCacheEntry, error) {
	var e models.DistanceCacheEntry
	err := row.Scan(
		&e.Origin.Lat, &e.Origin.Lng,
		&e.Destination.Lat, &e.Destination.Lng,
		&e.DistanceMeters, &e.DurationSecs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *distanceCacheRepository) Get(ctx context.Context, origin, dest models.Coordinates) (*models.DistanceCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry, err := scanEntry(r.store.db.QueryRowContext(ctx, selectDistanceSQL, roundedKey(origin, dest)...))
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}
	return entry, nil
}

// GetBatch returns hits keyed by database.CacheKey; misses are absent
func (r *distanceCacheRepository) GetBatch(ctx context.Context, pairs []database.CoordinatePair) (map[string]*models.DistanceCacheEntry, error) {
	hits := make(map[string]*models.DistanceCacheEntry, len(pairs))
	if len(pairs) == 0 {
		return hits, nil
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stmt, err := r.store.db.PrepareContext(ctx, selectDistanceSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare batch query: %w", err)
	}
	defer stmt.Close()

	for _, pair := range pairs {
		entry, err := scanEntry(stmt.QueryRowContext(ctx, roundedKey(pair.Origin, pair.Dest)...))
		if err != nil {
			return nil, fmt.Errorf("failed to query batch entry: %w", err)
		}
		if entry != nil {
			hits[database.CacheKey(pair.Origin, pair.Dest)] = entry
		}
	}

	return hits, nil
}

func (r *distanceCacheRepository) Set(ctx context.Context, entry *models.DistanceCacheEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, upsertDistanceSQL, upsertArgs(entry)...); err != nil {
		return fmt.Errorf("failed to set distance cache entry: %w", err)
	}
	return nil
}

// SetBatch writes all entries in one transaction
func (r *distanceCacheRepository) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertDistanceSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		if _, err := stmt.ExecContext(ctx, upsertArgs(&entries[i])...); err != nil {
			return fmt.Errorf("failed to insert batch entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *distanceCacheRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM distance_cache"); err != nil {
		return fmt.Errorf("failed to clear distance cache: %w", err)
	}
	return nil
}

func (r *distanceCacheRepository) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int
	if err := r.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM distance_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count distance cache entries: %w", err)
	}
	return n, nil
}
