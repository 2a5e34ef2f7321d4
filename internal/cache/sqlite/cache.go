// Package sqlite backs the dedup cache with an embedded SQLite file
// (pure Go driver) for single-node deployments that want persistence
// without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS visitor_dedup (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS visitor_dedup_expires_at_idx ON visitor_dedup (expires_at);`

// Config locates the database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	// Logger reports non-fatal pragma failures. May be nil.
	Logger *zap.Logger
}

// Cache stores expiry as unix nanoseconds.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the file and schema when missing.
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("cache.sqlite.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BusyTimeout > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite busy_timeout: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable sqlite WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		logger.Warn("sqlite synchronous pragma failed; keeping default", zap.Error(err))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

// Get returns the value for key when it has not expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM visitor_dedup WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select dedup row: %w", err)
	}
	return value, true, nil
}

// Put upserts key with an expiry of now + ttl.
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO visitor_dedup (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, c.now().Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert dedup row: %w", err)
	}
	return nil
}

// Sweep deletes expired rows.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM visitor_dedup WHERE expires_at <= ?`, c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep dedup rows: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
