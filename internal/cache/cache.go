// Package cache defines the dedup store contract shared by every backend.
//
// A backend maps a visitor key to the time it was last notified and forgets
// the entry once its TTL elapses. Expiry is the backend's job; callers only
// Get and Put.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a cache after Close.
var ErrClosed = errors.New("cache: closed")

// Cache is a TTL key-value store.
type Cache interface {
	// Get returns the stored value and true when key is present and not expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key for ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// Pinger is implemented by backends with a remote dependency worth probing
// from the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that keep expired entries until
// they are explicitly purged.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// None never remembers anything, so every visitor is notified.
type None struct{}

// Get always misses.
func (None) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Put discards the entry.
func (None) Put(context.Context, string, string, time.Duration) error { return nil }

// Close is a no-op.
func (None) Close() error { return nil }
