package colfetch

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"
)

// Place copies src into dst at [offset, offset+len(src)).
//
// Place performs no locking. Callers guarantee that concurrently active
// placements target disjoint ranges of dst. A placement that does not fit
// in dst would spill into a neighbouring range and fails with KindOverlap.
func Place(dst []byte, offset int64, src []byte) error {
	n := int64(len(src))
	if offset < 0 || n > int64(len(dst))-offset {
		return &Error{
			Kind:   KindOverlap,
			Op:     "place",
			Offset: offset,
			Length: n,
			Err:    fmt.Errorf("destination holds %d bytes", len(dst)),
		}
	}
	copy(dst[offset:], src)
	return nil
}

// validateNoOverlaps checks that ranges are pairwise disjoint and lie
// within [lo, hi).
func validateNoOverlaps(ranges []RangeRequest, lo, hi int64) error {
	for _, r := range ranges {
		if r.Offset < lo || r.Length < 0 || r.Length > hi-r.Offset {
			return &Error{
				Kind:   KindOverlap,
				Op:     "layout",
				Offset: r.Offset,
				Length: r.Length,
				Err:    fmt.Errorf("range outside [%d, %d)", lo, hi),
			}
		}
	}
	if len(ranges) <= 1 {
		return nil
	}

	sorted := make([]RangeRequest, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length < sorted[j].Length
	})

	for i := 1; i < len(sorted); i++ {
		// Overflow-safe form of prev.Offset+prev.Length > cur.Offset;
		// sorted order keeps the subtraction non-negative.
		if sorted[i-1].Length > sorted[i].Offset-sorted[i-1].Offset {
			return &Error{
				Kind:   KindOverlap,
				Op:     "layout",
				Offset: sorted[i].Offset,
				Length: sorted[i].Length,
				Err:    fmt.Errorf("overlaps range at offset %d", sorted[i-1].Offset),
			}
		}
	}
	return nil
}

// BlockBuffer is the destination for one block. It tracks how many bytes
// have been placed so coverage can be checked once all columns settle.
type BlockBuffer struct {
	base    int64
	data    []byte
	written atomic.Int64
}

// newBlockBuffer allocates a buffer for the block's byte range.
func newBlockBuffer(b BlockDescriptor) *BlockBuffer {
	return &BlockBuffer{base: b.StartOffset, data: make([]byte, b.TotalSize)}
}

// Bytes returns the block's bytes. Regions whose fetch failed are zero.
func (b *BlockBuffer) Bytes() []byte { return b.data }

// Written returns the number of bytes placed so far.
func (b *BlockBuffer) Written() int64 { return b.written.Load() }

// record adds n placed bytes to the tally.
func (b *BlockBuffer) record(n int64) { b.written.Add(n) }

// checkCoverage reports KindGap unless exactly want bytes were written.
// want is the sum of the block's column sizes, not the block size.
func (b *BlockBuffer) checkCoverage(want int64) error {
	if got := b.written.Load(); got != want {
		return &Error{
			Kind:   KindGap,
			Op:     "assemble",
			Offset: b.base,
			Length: int64(len(b.data)),
			Err:    fmt.Errorf("wrote %d of %d bytes", got, want),
		}
	}
	return nil
}

// Buffer is an in-memory io.WriterAt of fixed size, used as the default
// destination for flat reads.
type Buffer struct {
	data []byte
}

// NewBuffer allocates a Buffer of size bytes.
func NewBuffer(size int64) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// WriteAt implements io.WriterAt by placing p at off.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if err := Place(b.data, off, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

var _ io.WriterAt = (*Buffer)(nil)
