package colfetch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------------------------
// Fault-Injection Reader Wrapper (test-only)
// -----------------------------------------------------------------------------
//
// faultReader wraps a RangeReader and enables deterministic fault injection
// for testing fetch failure paths. It provides:
//   - Error injection for reads starting at given offsets
//   - Call observation/recording
//   - In-flight tracking for concurrency bounds

// faultReader wraps a RangeReader with fault injection capabilities.
type faultReader struct {
	inner RangeReader

	mu sync.Mutex

	// failures maps a read offset to the errors returned by its next reads,
	// consumed in order.
	failures map[int64][]error

	// truncate maps a read offset to a number of bytes to drop, once.
	truncate map[int64]int

	// delay is applied to every read, to force overlap between readers.
	delay time.Duration

	calls []RangeRequest

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// newFaultReader creates a fault-injection wrapper around the given reader.
func newFaultReader(inner RangeReader) *faultReader {
	return &faultReader{
		inner:    inner,
		failures: make(map[int64][]error),
		truncate: make(map[int64]int),
	}
}

// FailAt queues errs for reads starting at offset.
func (f *faultReader) FailAt(offset int64, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[offset] = append(f.failures[offset], errs...)
}

// TruncateAt drops n bytes from the next read starting at offset.
func (f *faultReader) TruncateAt(offset int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncate[offset] = n
}

// SetDelay sets a delay applied to every read.
func (f *faultReader) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns a copy of the recorded reads, in arrival order.
func (f *faultReader) Calls() []RangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RangeRequest(nil), f.calls...)
}

// CallsAt counts reads that started at offset.
func (f *faultReader) CallsAt(offset int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Offset == offset {
			n++
		}
	}
	return n
}

// MaxInFlight returns the highest number of concurrent reads observed.
func (f *faultReader) MaxInFlight() int64 { return f.maxInFlight.Load() }

func (f *faultReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, RangeRequest{Offset: offset, Length: length})
	var injected error
	if errs := f.failures[offset]; len(errs) > 0 {
		injected = errs[0]
		f.failures[offset] = errs[1:]
	}
	cut := f.truncate[offset]
	delete(f.truncate, offset)
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if injected != nil {
		return nil, injected
	}

	data, err := f.inner.ReadRange(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	if cut > 0 {
		data = data[:max(0, len(data)-cut)]
	}
	return data, nil
}

// Ensure faultReader implements RangeReader
var _ RangeReader = (*faultReader)(nil)

// -----------------------------------------------------------------------------
// Shared fixtures
// -----------------------------------------------------------------------------

// patterned returns n bytes whose values depend on their offset.
func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// retryable, notFound are injected transport failures.
var (
	errTransient = &Error{Kind: KindRetryable, Op: "test", Err: context.DeadlineExceeded}
	errMissing   = &Error{Kind: KindNotFound, Op: "test", Status: 404}
)

// newTestFetcher builds a fetcher with the default retry budget and no
// executor.
func newTestFetcher(r RangeReader) *RetryingFetcher {
	return NewRetryingFetcher(r, DefaultRetries, nil, nil, nil)
}
