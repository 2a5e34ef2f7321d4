package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunnerRunsTasksAfterReturn(t *testing.T) {
	t.Parallel()
	r := NewRunner(time.Second, nil)
	defer r.Close()

	release := make(chan struct{})
	var ran atomic.Int32
	r.Go("slow", func(context.Context) {
		<-release
		ran.Add(1)
	})
	require.Zero(t, ran.Load(), "Go must not block on the task")

	close(release)
	require.NoError(t, r.Wait(context.Background()))
	require.EqualValues(t, 1, ran.Load())
}

func TestRunnerRecoversPanics(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRunner(time.Second, zap.New(core))
	defer r.Close()

	var after atomic.Bool
	r.Go("boom", func(context.Context) { panic("kaboom") })
	r.Go("fine", func(context.Context) { after.Store(true) })
	require.NoError(t, r.Wait(context.Background()))

	require.True(t, after.Load())
	entries := logs.FilterMessage("background task panicked").All()
	require.Len(t, entries, 1)
	require.Equal(t, "boom", entries[0].ContextMap()["task"])
}

func TestRunnerAppliesTaskTimeout(t *testing.T) {
	t.Parallel()
	r := NewRunner(20*time.Millisecond, nil)
	defer r.Close()

	errs := make(chan error, 1)
	r.Go("deadline", func(ctx context.Context) {
		<-ctx.Done()
		errs <- ctx.Err()
	})
	require.NoError(t, r.Wait(context.Background()))
	require.ErrorIs(t, <-errs, context.DeadlineExceeded)
}

func TestRunnerCloseCancelsTasks(t *testing.T) {
	t.Parallel()
	r := NewRunner(time.Minute, nil)

	errs := make(chan error, 1)
	r.Go("cancel", func(ctx context.Context) {
		<-ctx.Done()
		errs <- ctx.Err()
	})
	r.Close()
	require.NoError(t, r.Wait(context.Background()))
	require.ErrorIs(t, <-errs, context.Canceled)
}

func TestRunnerWaitHonoursContext(t *testing.T) {
	t.Parallel()
	r := NewRunner(time.Minute, nil)
	defer r.Close()

	block := make(chan struct{})
	defer close(block)
	r.Go("stuck", func(context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestInlineRunsSynchronously(t *testing.T) {
	t.Parallel()
	var ran bool
	Inline{}.Go("sync", func(ctx context.Context) {
		_, ok := ctx.Deadline()
		require.True(t, ok)
		ran = true
	})
	require.True(t, ran)

	require.NotPanics(t, func() {
		Inline{}.Go("boom", func(context.Context) { panic("x") })
	})
}
