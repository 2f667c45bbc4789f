package colfetch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight is the default bound on concurrent range requests
// across a session.
const DefaultMaxInFlight = 64

// Executor bounds the number of range requests in flight and tracks the
// goroutines behind asynchronous results.
//
// An Executor is created at session start and closed at session end. It is
// shared by every fan-out in the session, so concurrency limits hold across
// blocks, columns, and pages together.
type Executor struct {
	slots *semaphore.Weighted
	limit int64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an Executor that allows at most maxInFlight
// concurrent range requests.
func NewExecutor(maxInFlight int) (*Executor, error) {
	if maxInFlight <= 0 {
		return nil, fmt.Errorf("colfetch: max in-flight requests must be positive (got %d)", maxInFlight)
	}
	return &Executor{
		slots: semaphore.NewWeighted(int64(maxInFlight)),
		limit: int64(maxInFlight),
	}, nil
}

// Limit returns the in-flight request bound.
func (e *Executor) Limit() int { return int(e.limit) }

// acquire takes one in-flight slot. The caller must call release.
func (e *Executor) acquire(ctx context.Context) error {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return classify("acquire", 0, 0, err)
	}
	return nil
}

func (e *Executor) release() { e.slots.Release(1) }

// track registers a goroutine that Close must wait for.
func (e *Executor) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// Close stops accepting new work and waits for running tasks to finish.
// It is safe to call more than once.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

// Go runs fn on a new goroutine owned by ex and returns its future.
// If ex is closed the future fails with ErrExecutorClosed.
func Go[T any](ctx context.Context, ex *Executor, fn func(context.Context) (T, error)) *Future[T] {
	if !ex.track() {
		return resolved(Fail[T](ErrExecutorClosed))
	}
	f := newFuture[T]()
	go func() {
		defer ex.wg.Done()
		v, err := fn(ctx)
		f.complete(Result[T]{Value: v, Err: err})
	}()
	return f
}
