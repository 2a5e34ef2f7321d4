// Package postgres backs the dedup cache with a Postgres table for
// deployments that already run a database and want suppression to survive
// restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "visitor_dedup"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Cache keeps one row per key with an absolute expires_at. Expired rows are
// ignored on read and removed by Sweep.
type Cache struct {
	pool  pool
	table string
	now   func() time.Time
}

// New connects to Postgres and creates the table when missing.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := c.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return c, nil
}

// NewWithPool constructs a cache from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Cache, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Cache{pool: p, table: table, now: time.Now}, nil
}

// EnsureSchema creates the dedup table and its expiry index.
func (c *Cache) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_expires_at_idx ON %[1]s (expires_at)`, c.table)
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create dedup table: %w", err)
	}
	return nil
}

// Get returns the value for key when its row has not expired.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND expires_at > $2`, c.table)
	var value string
	err := c.pool.QueryRow(ctx, query, key, c.now().UTC()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select dedup row: %w", err)
	}
	return value, true, nil
}

// Put upserts key with expires_at = now + ttl.
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, c.table)
	if _, err := c.pool.Exec(ctx, query, key, value, c.now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("upsert dedup row: %w", err)
	}
	return nil
}

// Sweep deletes expired rows and reports how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, c.table)
	tag, err := c.pool.Exec(ctx, query, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep dedup rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (c *Cache) Close() error {
	if c == nil || c.pool == nil {
		return nil
	}
	c.pool.Close()
	return nil
}
