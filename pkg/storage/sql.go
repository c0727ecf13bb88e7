package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore implements KV on a single table in SQLite or PostgreSQL.
// The driver must be registered by the binary (see cmd/ppac-agent).
type SQLStore struct {
	db      *sql.DB
	driver  string
	prefix  string
	timeout time.Duration
}

// OpenSQLStore opens the database described by cfg and ensures the schema exists
func OpenSQLStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	db, err := sql.Open(cfg.SQLDriver, cfg.SQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to an in-memory SQLite database sees a different database
	if cfg.SQLDriver == "sqlite3" && strings.Contains(cfg.SQLDSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewSQLStore(db, cfg.SQLDriver, cfg.KeyPrefix, cfg.SQLTimeout)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, driver, prefix string, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SQLStore{
		db:      db,
		driver:  driver,
		prefix:  prefix,
		timeout: timeout,
	}
}

// EnsureSchema creates the analytics_kv table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	valueType := "BLOB"
	if s.driver == "postgres" {
		valueType = "BYTEA"
	}
	query := `
		CREATE TABLE IF NOT EXISTS analytics_kv (
			record_key TEXT PRIMARY KEY,
			record_value ` + valueType + ` NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create analytics_kv table: %w", err)
	}
	return nil
}

// placeholder returns the n-th (1 based) bind parameter for the driver
func (s *SQLStore) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Get implements KV.Get
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := "SELECT record_value FROM analytics_kv WHERE record_key = " + s.placeholder(1)
	var value []byte
	err := s.db.QueryRowContext(ctx, query, s.prefix+key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query key %s: %w", key, err)
	}
	return value, nil
}

// Set implements KV.Set
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO analytics_kv (record_key, record_value, updated_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (record_key) DO UPDATE SET
			record_value = excluded.record_value,
			updated_at = excluded.updated_at
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3))

	if _, err := s.db.ExecContext(ctx, query, s.prefix+key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert key %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.Delete
func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		placeholders[i] = s.placeholder(i + 1)
		args[i] = s.prefix + key
	}
	query := "DELETE FROM analytics_kv WHERE record_key IN (" + strings.Join(placeholders, ", ") + ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// HealthCheck pings the database
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}
