// Package memory provides an in-process TTL cache for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jalaljaleh/portfolio-edge/internal/cache"
)

type entry struct {
	value   string
	expires time.Time
}

// Cache is a map guarded by a RWMutex. Expired entries are dropped lazily on
// read and in bulk by Sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	closed  bool
}

// New constructs an empty Cache. now may be nil.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]entry), now: now}
}

// Get returns the live value for key.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", false, cache.ErrClosed
	}
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Put stores value for ttl. A non-positive ttl removes the key.
func (c *Cache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cache.ErrClosed
	}
	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
	return nil
}

// Sweep removes every expired entry and reports how many were dropped.
func (c *Cache) Sweep(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, cache.ErrClosed
	}
	now := c.now()
	var removed int64
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops all entries; later calls fail with cache.ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = nil
	return nil
}
