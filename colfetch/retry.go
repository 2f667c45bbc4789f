package colfetch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// DefaultRetries is the default retry budget: one retry, two attempts.
const DefaultRetries = 1

// RetryingFetcher wraps a RangeReader with a bounded retry budget.
//
// Only KindRetryable failures are retried; every other kind is returned
// immediately. For a fixed sequence of underlying outcomes the number of
// attempts is fixed.
type RetryingFetcher struct {
	reader  RangeReader
	retries int

	// backoff bounds, zero disables sleeping between attempts
	backoffBase time.Duration
	backoffMax  time.Duration

	exec    *Executor
	metrics *Metrics
	logger  *zap.Logger
}

// NewRetryingFetcher creates a fetcher with the session's retry settings.
// exec, metrics, and logger may be nil.
func NewRetryingFetcher(reader RangeReader, retries int, exec *Executor, metrics *Metrics, logger *zap.Logger) *RetryingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	return &RetryingFetcher{
		reader:  reader,
		retries: retries,
		exec:    exec,
		metrics: metrics,
		logger:  logger,
	}
}

// withBackoff enables jittered exponential backoff between attempts.
func (f *RetryingFetcher) withBackoff(base, maxDelay time.Duration) *RetryingFetcher {
	f.backoffBase, f.backoffMax = base, maxDelay
	return f
}

// Fetch reads [offset, offset+length) with retries.
func (f *RetryingFetcher) Fetch(ctx context.Context, offset, length int64) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		data, err := f.attempt(ctx, offset, length)
		if err == nil {
			return data, nil
		}
		if KindOf(err) != KindRetryable || attempt > f.retries {
			return nil, err
		}

		f.metrics.retry()
		f.logger.Warn("retrying range read",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.retries+1),
			zap.Int64("offset", offset),
			zap.Int64("length", length),
			zap.Error(err))

		if err := f.sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// ReadRange implements RangeReader, so a RetryingFetcher can stand in for
// the reader it wraps.
func (f *RetryingFetcher) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	return f.Fetch(ctx, offset, length)
}

// attempt issues a single request while holding an in-flight slot.
func (f *RetryingFetcher) attempt(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("range read", offset, length, err)
	}
	if f.exec != nil {
		if err := f.exec.acquire(ctx); err != nil {
			return nil, classify("range read", offset, length, err)
		}
		defer f.exec.release()
	}

	f.metrics.start()
	start := time.Now()
	data, err := f.reader.ReadRange(ctx, offset, length)
	if err == nil && int64(len(data)) != length {
		// A truncated body is a transient transport fault.
		err = &Error{Kind: KindRetryable, Err: fmt.Errorf("short read: got %d of %d bytes", len(data), length)}
	}
	f.metrics.finish(time.Since(start), len(data), err)
	if err != nil {
		return nil, classify("range read", offset, length, err)
	}
	return data, nil
}

func (f *RetryingFetcher) sleep(ctx context.Context, attempt int) error {
	if f.backoffBase <= 0 {
		return nil
	}
	d := f.backoffBase << (attempt - 1)
	if d <= 0 || d > f.backoffMax {
		d = f.backoffMax
	}
	// Full jitter.
	d = time.Duration(rand.Int64N(int64(d) + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return classify("range read", 0, 0, ctx.Err())
	}
}
