// Package ratelimit throttles relay sends per destination so a burst of
// visitors cannot trip the chat API's flood limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jalaljaleh/portfolio-edge/internal/metrics"
	"github.com/jalaljaleh/portfolio-edge/internal/relay"
)

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
}

// Relay wraps another relay with a token bucket per destination.
type Relay struct {
	next relay.Sender

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New wraps next. A non-positive RPS disables throttling.
func New(next relay.Sender, cfg Config) *Relay {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	metrics.Init()
	return &Relay{
		next:     next,
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// SendMessage waits for a token for destination, then delegates.
func (r *Relay) SendMessage(ctx context.Context, destination, text string) error {
	if err := r.wait(ctx, destination); err != nil {
		return err
	}
	return r.next.SendMessage(ctx, destination, text)
}

func (r *Relay) wait(ctx context.Context, destination string) error {
	r.mu.Lock()
	limiter, ok := r.limiters[destination]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[destination] = limiter
	}
	r.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay worth recording.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}
