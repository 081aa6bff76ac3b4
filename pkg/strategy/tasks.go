package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/odam-offline-cache/pkg/logging"
)

// Default limits for background work.
const (
	DefaultTaskLimit   = 32
	DefaultTaskTimeout = 30 * time.Second
)

// Tasks tracks background work started on behalf of a request (cache
// refreshes). A task outlives the request that started it and runs on a
// context detached from the request's cancellation; owners wait for all
// tasks before tearing down the cache.
type Tasks struct {
	wg      sync.WaitGroup
	sem     chan struct{}
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTasks creates a tracker running at most limit tasks at once, each
// bounded by timeout. Non-positive values select the defaults.
func NewTasks(limit int, timeout time.Duration, logger zerolog.Logger) *Tasks {
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Tasks{
		sem:     make(chan struct{}, limit),
		timeout: timeout,
		logger:  logger,
	}
}

// Go runs fn in the background. The task context keeps ctx's values
// (trace span) but not its cancellation. When the tracker is saturated
// the task is dropped and Go returns false.
func (t *Tasks) Go(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	select {
	case t.sem <- struct{}{}:
	default:
		tasksDropped.Inc()
		t.logger.Debug().Str("task", name).Msg("Background task dropped, tracker saturated")
		return false
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.sem }()
		defer cancel()

		start := time.Now()
		fn(taskCtx)
		t.logger.Debug().
			Str("task", name).
			Dur(logging.FieldDuration, time.Since(start)).
			Msg("Background task finished")
	}()
	return true
}

// Running returns the number of tasks currently in flight.
func (t *Tasks) Running() int {
	return len(t.sem)
}

// Wait blocks until every started task has finished.
func (t *Tasks) Wait() {
	t.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (t *Tasks) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
