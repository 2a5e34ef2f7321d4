// Package bigcache backs the dedup cache with allegro/bigcache, an
// in-process sharded store that keeps GC pressure flat under many keys.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	allegro "github.com/allegro/bigcache/v3"
	"github.com/pbnjay/memory"

	"github.com/jalaljaleh/portfolio-edge/internal/cache"
)

const expiryPrefixLen = 8

// Config tunes the underlying bigcache instance.
type Config struct {
	// LifeWindow is the eviction horizon of bigcache itself. It must be at
	// least the longest TTL passed to Put.
	LifeWindow  time.Duration
	CleanWindow time.Duration
	Shards      int
	// HardMaxCacheSizeMB caps memory; 0 derives a cap from host memory.
	HardMaxCacheSizeMB int
}

// Cache stores an 8-byte unix-nano expiry in front of each value so entries
// honour their own TTL inside bigcache's global LifeWindow.
type Cache struct {
	store  *allegro.BigCache
	now    func() time.Time
	closed atomic.Bool
}

// New builds a Cache. ctx bounds bigcache's background cleaner.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 24 * time.Hour
	}
	bc := allegro.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		bc.CleanWindow = cfg.CleanWindow
	} else {
		bc.CleanWindow = 5 * time.Minute
	}
	if cfg.Shards > 0 {
		bc.Shards = cfg.Shards
	}
	bc.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	if bc.HardMaxCacheSize <= 0 {
		bc.HardMaxCacheSize = defaultHardMaxMB(memory.TotalMemory())
	}
	bc.Verbose = false

	store, err := allegro.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}
	return &Cache{store: store, now: time.Now}, nil
}

// defaultHardMaxMB allows the cache 1/16 of host memory, clamped to [16, 512] MB.
func defaultHardMaxMB(totalBytes uint64) int {
	mb := int(totalBytes / 16 / (1 << 20))
	switch {
	case mb < 16:
		return 16
	case mb > 512:
		return 512
	default:
		return mb
	}
}

// Get returns the live value for key.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	if c.closed.Load() {
		return "", false, cache.ErrClosed
	}
	raw, err := c.store.Get(key)
	if errors.Is(err, allegro.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("bigcache get: %w", err)
	}
	if len(raw) < expiryPrefixLen {
		return "", false, nil
	}
	expires := int64(binary.BigEndian.Uint64(raw[:expiryPrefixLen]))
	if c.now().UnixNano() >= expires {
		_ = c.store.Delete(key)
		return "", false, nil
	}
	return string(raw[expiryPrefixLen:]), true, nil
}

// Put stores value until now+ttl.
func (c *Cache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if c.closed.Load() {
		return cache.ErrClosed
	}
	buf := make([]byte, expiryPrefixLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(c.now().Add(ttl).UnixNano()))
	copy(buf[expiryPrefixLen:], value)
	if err := c.store.Set(key, buf); err != nil {
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Close stops the cleaner and releases the shards.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.store.Close()
}
