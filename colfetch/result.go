package colfetch

import (
	"context"
)

// Result is the tagged outcome of an asynchronous fetch: either a value or
// an error carrying its original Kind.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok returns a successful result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail returns a failed result.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Kind returns the failure kind, or KindUnknown for a successful result.
func (r Result[T]) Kind() Kind { return KindOf(r.Err) }

// Unpack returns the value and error.
func (r Result[T]) Unpack() (T, error) { return r.Value, r.Err }

// Future is a handle to a result produced by a goroutine.
// It completes exactly once.
type Future[T any] struct {
	done chan struct{}
	res  Result[T]
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolved returns a future that is already complete.
func resolved[T any](r Result[T]) *Future[T] {
	f := newFuture[T]()
	f.complete(r)
	return f
}

func (f *Future[T]) complete(r Result[T]) {
	f.res = r
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the result, blocking until it is available.
func (f *Future[T]) Result() Result[T] {
	<-f.done
	return f.res
}

// Wait blocks until the result is available or ctx is done.
// Abandoning a wait does not cancel the underlying work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero T
		return zero, classify("wait", 0, 0, ctx.Err())
	}
}
