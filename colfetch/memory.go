package colfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Memory Reader
// -----------------------------------------------------------------------------

// MemoryReader implements RangeReader and SizeLookup over an in-memory
// object. It counts requests so callers can assert round trips.
//
// MemoryReader is safe for concurrent use.
type MemoryReader struct {
	mu   sync.RWMutex
	data []byte

	calls atomic.Int64
}

// NewMemoryReader creates a reader over a copy of data.
func NewMemoryReader(data []byte) *MemoryReader {
	return &MemoryReader{data: append([]byte(nil), data...)}
}

// ReadRange returns a copy of [offset, offset+length).
func (m *MemoryReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if offset < 0 || length <= 0 || length > int64(len(m.data))-offset {
		return nil, &Error{
			Kind:   KindOther,
			Op:     "memory read",
			Offset: offset,
			Length: length,
			Status: 416,
			Err:    fmt.Errorf("range outside object of %d bytes", len(m.data)),
		}
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

// Size returns the object size.
func (m *MemoryReader) Size(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

// Replace swaps the object contents, simulating an overwrite.
func (m *MemoryReader) Replace(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

// Calls returns the number of ReadRange calls made so far.
func (m *MemoryReader) Calls() int64 { return m.calls.Load() }

var (
	_ RangeReader = (*MemoryReader)(nil)
	_ SizeLookup  = (*MemoryReader)(nil)
)

// -----------------------------------------------------------------------------
// File Reader
// -----------------------------------------------------------------------------

// FileReader adapts an io.ReaderAt of known size, such as an *os.File.
type FileReader struct {
	r    io.ReaderAt
	size int64
}

// NewFileReader returns a reader over the first size bytes of r.
func NewFileReader(r io.ReaderAt, size int64) *FileReader {
	return &FileReader{r: r, size: size}
}

// ReadRange reads [offset, offset+length) with a single ReadAt.
func (a *FileReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || length <= 0 || length > a.size-offset {
		return nil, &Error{
			Kind:   KindOther,
			Op:     "file read",
			Offset: offset,
			Length: length,
			Err:    fmt.Errorf("range outside object of %d bytes", a.size),
		}
	}
	buf := make([]byte, length)
	n, err := a.r.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, err
	}
	return buf[:n], nil
}

// Size returns the configured size.
func (a *FileReader) Size(context.Context) (int64, error) { return a.size, nil }

var (
	_ RangeReader = (*FileReader)(nil)
	_ SizeLookup  = (*FileReader)(nil)
)
