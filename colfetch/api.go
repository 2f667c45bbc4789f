// Package colfetch reads large columnar objects from blob storage using
// byte-range requests.
//
// A read session first discovers the object's trailing footer in at most two
// round trips, then fetches the object either as fixed-size pages or, when a
// layout is available, as blocks of columns split into size-capped chunks.
// Fetches run concurrently and are reassembled by absolute offset.
//
// colfetch does not decode column data and does not own a transport: it
// drives any RangeReader, and delegates footer decoding to a LayoutDecoder.
package colfetch

import (
	"context"
	"fmt"
	"math"
)

// -----------------------------------------------------------------------------
// Transport interfaces
// -----------------------------------------------------------------------------

// RangeReader fetches byte ranges of a single remote object.
//
// Implementations must be safe for concurrent use. Each call is one round
// trip; no ordering is guaranteed between concurrent calls.
type RangeReader interface {
	// ReadRange returns exactly length bytes starting at offset.
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
}

// SizeLookup reports the byte size of a remote object.
// It is called once per session, before any range is fetched.
type SizeLookup interface {
	Size(ctx context.Context) (int64, error)
}

// LayoutDecoder turns raw footer metadata into the object's block layout.
// A decode failure is reported to callers as KindMalformedMetadata.
type LayoutDecoder interface {
	DecodeLayout(metadata []byte) ([]BlockDescriptor, error)
}

// -----------------------------------------------------------------------------
// Descriptors
// -----------------------------------------------------------------------------

// maxRequestLength bounds a single range request to an unsigned 32-bit length.
const maxRequestLength = int64(math.MaxUint32)

// RangeRequest describes one byte range of an object.
type RangeRequest struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset of the range.
func (r RangeRequest) End() int64 { return r.Offset + r.Length }

// validate checks the request against the object size.
func (r RangeRequest) validate(size int64) error {
	if r.Offset < 0 || r.Length <= 0 || r.Length > maxRequestLength {
		return fmt.Errorf("colfetch: invalid range (offset=%d, length=%d)", r.Offset, r.Length)
	}
	if size >= 0 && r.Length > size-r.Offset {
		return fmt.Errorf("colfetch: range exceeds object (offset=%d, length=%d, size=%d)", r.Offset, r.Length, size)
	}
	return nil
}

// ObjectDescriptor identifies the object read by a session.
type ObjectDescriptor struct {
	// Locator names the object, for example "s3://bucket/key".
	Locator string

	// Size is the object size in bytes. It is known before any fetch begins
	// and does not change during a session.
	Size int64
}

// BlockDescriptor describes a contiguous row-group-like region of an object.
type BlockDescriptor struct {
	// Index is the block's position in the layout.
	Index int

	// StartOffset is the absolute offset of the block's first byte.
	StartOffset int64

	// TotalSize is the size of the block in bytes.
	TotalSize int64

	// Columns lists the block's columns. Their ranges are disjoint and lie
	// within [StartOffset, StartOffset+TotalSize).
	Columns []ColumnDescriptor
}

// End returns the exclusive end offset of the block.
func (b BlockDescriptor) End() int64 { return b.StartOffset + b.TotalSize }

// ColumnDescriptor describes one column's bytes within a block.
type ColumnDescriptor struct {
	// Path is the dotted column path, used for logging only.
	Path string

	// StartOffset is the absolute offset where the column's bytes begin.
	StartOffset int64

	// TotalSize is the column's size in bytes.
	TotalSize int64

	// FirstReadOffset is the dictionary page offset when the column has a
	// dictionary, otherwise its first data page offset.
	// Always >= StartOffset.
	FirstReadOffset int64
}

// FooterDescriptor is the result of footer discovery.
type FooterDescriptor struct {
	// Magic is the trailing magic token that was validated.
	Magic []byte

	// FooterLength is the metadata length read from the object tail.
	FooterLength uint32

	// Metadata holds exactly FooterLength bytes of footer metadata.
	Metadata []byte

	// RoundTrips is the number of range requests discovery issued (1 or 2).
	RoundTrips int
}
