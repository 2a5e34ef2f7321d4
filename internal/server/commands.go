package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/api"
	"github.com/jalaljaleh/portfolio-edge/internal/cache"
	"github.com/jalaljaleh/portfolio-edge/internal/notify"
)

type lengther interface {
	Len() int
}

// devCommands are the operator actions exposed on /dev next to the builtin ping.
func devCommands(app *App) map[string]api.Command {
	return map[string]api.Command{
		"stats": func(context.Context) (any, error) {
			out := map[string]any{
				"cache":     app.cfg.Cache.Provider,
				"relay":     app.cfg.Relay.Provider,
				"publisher": app.cfg.Publisher.Provider,
				"ttl":       int(app.cfg.Notify.TTL / time.Second),
			}
			if l, ok := app.cache.(lengther); ok {
				out["entries"] = l.Len()
			}
			return out, nil
		},
		"sweep": func(ctx context.Context) (any, error) {
			s, ok := app.cache.(cache.Sweeper)
			if !ok {
				return map[string]any{"removed": 0, "supported": false}, nil
			}
			n, err := s.Sweep(ctx)
			if err != nil {
				return nil, fmt.Errorf("sweep failed: %w", err)
			}
			return map[string]any{"removed": n, "supported": true}, nil
		},
		"test": func(ctx context.Context) (any, error) {
			msg := notify.Escape("Test message from portfolio-edge at " + time.Now().UTC().Format(time.RFC3339))
			if err := app.relay.SendMessage(ctx, destination(app.cfg), msg); err != nil {
				return nil, fmt.Errorf("relay send failed: %w", err)
			}
			return "sent", nil
		},
	}
}

func readinessChecks(app *App) []api.Check {
	var checks []api.Check
	if p, ok := app.cache.(cache.Pinger); ok {
		checks = append(checks, api.Check{Name: "cache", Probe: p.Ping})
	}
	return checks
}

// startSweeper purges expired dedup entries on an interval for backends that
// keep them around.
func (a *App) startSweeper(interval time.Duration) {
	s, ok := a.cache.(cache.Sweeper)
	if !ok || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	a.sweeperDone = make(chan struct{})
	logger := a.logger.Named("sweeper")

	go func() {
		defer close(a.sweeperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx)
				switch {
				case err == nil:
					if n > 0 {
						logger.Debug("expired dedup entries removed", zap.Int64("removed", n))
					}
				case errors.Is(err, context.Canceled), errors.Is(err, cache.ErrClosed):
					return
				default:
					logger.Warn("dedup sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
