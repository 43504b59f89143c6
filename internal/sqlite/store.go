package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"route-optimizer/internal/database"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Store is a SQLite-backed distance cache implementing database.CacheStore
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	distanceCacheRepo database.DistanceCacheRepository
}

// New opens (or creates) the SQLite cache at dbPath
func New(dbPath string) (*Store, error) {
	if err := database.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	log.Info().Str("component", "sqlite").Str("path", dbPath).Msg("opening cache database")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.distanceCacheRepo = &distanceCacheRepository{store: store}

	return store, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// No schema_version table yet.
		return s.createSchema()
	}

	if version < schemaVersion {
		return s.runMigrations(version)
	}

	return nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT INTO schema_version (version) VALUES (1);

	CREATE TABLE IF NOT EXISTS distance_cache (
		origin_lat REAL NOT NULL,
		origin_lng REAL NOT NULL,
		dest_lat REAL NOT NULL,
		dest_lng REAL NOT NULL,
		distance_meters REAL NOT NULL,
		duration_secs REAL NOT NULL,
		cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (origin_lat, origin_lng, dest_lat, dest_lng)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Str("component", "sqlite").Int("version", schemaVersion).Msg("schema initialized")
	return nil
}

func (s *Store) runMigrations(fromVersion int) error {
	log.Info().Str("component", "sqlite").Int("from", fromVersion).Int("to", schemaVersion).Msg("migrating schema")
	_, err := s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion)
	return err
}

// Close checkpoints the WAL and closes the connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warn().Str("component", "sqlite").Err(err).Msg("wal checkpoint failed")
	}
	return s.db.Close()
}

// HealthCheck verifies the database connection
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DistanceCache() database.DistanceCacheRepository { return s.distanceCacheRepo }
