package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jalaljaleh/portfolio-edge/internal/cache"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCacheExpiresEntries(t *testing.T) {
	t.Parallel()
	clock := &manualClock{t: time.Unix(1700000000, 0)}
	c := New(clock.now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u:visitor-42", "1700000000000", 24*time.Hour))
	got, ok, err := c.Get(ctx, "u:visitor-42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1700000000000", got)

	clock.advance(24*time.Hour - time.Second)
	_, ok, _ = c.Get(ctx, "u:visitor-42")
	require.True(t, ok)

	clock.advance(time.Second)
	_, ok, err = c.Get(ctx, "u:visitor-42")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestCacheSweep(t *testing.T) {
	t.Parallel()
	clock := &manualClock{t: time.Unix(0, 0)}
	c := New(clock.now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Put(ctx, "b", "1", time.Hour))
	clock.advance(2 * time.Minute)

	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 1, c.Len())
}

func TestCacheNonPositiveTTLDeletes(t *testing.T) {
	t.Parallel()
	c := New(nil)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Put(ctx, "a", "1", 0))
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheClosed(t *testing.T) {
	t.Parallel()
	c := New(nil)
	require.NoError(t, c.Close())

	_, _, err := c.Get(context.Background(), "a")
	require.ErrorIs(t, err, cache.ErrClosed)
	require.ErrorIs(t, c.Put(context.Background(), "a", "1", time.Minute), cache.ErrClosed)
}

func TestNoneNeverHits(t *testing.T) {
	t.Parallel()
	var c cache.Cache = cache.None{}
	require.NoError(t, c.Put(context.Background(), "a", "1", time.Hour))
	_, ok, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, ok)
}
