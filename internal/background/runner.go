// Package background runs fire-and-forget work that must outlive the HTTP
// response that scheduled it.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/metrics"
)

const tracerName = "github.com/jalaljaleh/portfolio-edge/internal/background"

// DefaultTaskTimeout bounds a single task when no timeout is configured.
const DefaultTaskTimeout = 15 * time.Second

// Runner starts each task on its own goroutine with a deadline detached
// from the request context. A panicking task is logged and counted, never
// propagated.
type Runner struct {
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewRunner creates a Runner whose tasks are cancelled when Close is called.
func NewRunner(timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	base, cancel := context.WithCancel(context.Background())
	return &Runner{base: base, cancel: cancel, timeout: timeout, logger: logger}
}

// Go schedules fn and returns immediately.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	metrics.IncBackgroundTasks()
	go func() {
		defer r.wg.Done()
		defer metrics.DecBackgroundTasks()
		run(r.base, r.timeout, name, fn, r.logger)
	}()
}

// Wait blocks until every scheduled task finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the context handed to running tasks.
func (r *Runner) Close() {
	r.cancel()
}

// Inline runs tasks synchronously on the caller's goroutine. Used by the CLI
// and by tests that need deterministic ordering.
type Inline struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Go runs fn before returning.
func (i Inline) Go(name string, fn func(ctx context.Context)) {
	logger := i.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	run(context.Background(), timeout, name, fn, logger)
}

func run(parent context.Context, timeout time.Duration, name string, fn func(ctx context.Context), logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	var pc panics.Catcher
	pc.Try(func() { fn(ctx) })
	if rec := pc.Recovered(); rec != nil {
		span.RecordError(rec.AsError())
		span.SetStatus(codes.Error, "panic")
		metrics.Init()
		metrics.ObserveBackgroundPanic(name)
		logger.Error("background task panicked",
			zap.String("task", name),
			zap.Error(rec.AsError()),
			zap.ByteString("stack", rec.Stack),
		)
	}
}
