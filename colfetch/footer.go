package colfetch

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Footer discovery defaults.
const (
	// DefaultMaxInitialRead is the size of the opportunistic tail read.
	DefaultMaxInitialRead = 1 << 20 // 1 MiB

	// DefaultMaxFooterLength is the largest footer accepted.
	DefaultMaxFooterLength = 16 << 20 // 16 MiB

	// footerLengthSize is the width of the little-endian footer length field.
	footerLengthSize = 4
)

// ParquetMagic is the magic token that starts and ends a Parquet file.
var ParquetMagic = []byte("PAR1")

// FooterListener observes the round trips issued during footer discovery.
type FooterListener interface {
	StartInitialRequest()
	FinishInitialRequest()
	StartSecondRequest()
	FinishSecondRequest()
}

// NopFooterListener implements FooterListener with no-ops.
// Embed it to observe only some events.
type NopFooterListener struct{}

func (NopFooterListener) StartInitialRequest()  {}
func (NopFooterListener) FinishInitialRequest() {}
func (NopFooterListener) StartSecondRequest()   {}
func (NopFooterListener) FinishSecondRequest()  {}

// FooterReader locates and retrieves the trailing metadata block of a
// self-describing container.
//
// The object tail is laid out as
//
//	... | metadata (footerLength bytes) | footerLength (uint32 LE) | magic |
//
// Discovery reads min(size, maxInitialRead) bytes from the end of the
// object. When the metadata fits in that read it is sliced out directly
// (one round trip); otherwise the missing prefix is fetched with exactly one
// more read (two round trips). The footer length is never fetched on its own.
type FooterReader struct {
	reader          RangeReader
	magic           []byte
	maxInitialRead  int64
	maxFooterLength int64
	listener        FooterListener
	logger          *zap.Logger
}

// NewFooterReader creates a FooterReader with Parquet defaults.
// Footer reads are never chunked; pass a *RetryingFetcher as reader to
// retry transient failures.
func NewFooterReader(reader RangeReader) *FooterReader {
	return &FooterReader{
		reader:          reader,
		magic:           ParquetMagic,
		maxInitialRead:  DefaultMaxInitialRead,
		maxFooterLength: DefaultMaxFooterLength,
		listener:        NopFooterListener{},
		logger:          zap.NewNop(),
	}
}

// minObjectSize is the smallest object that can hold a footer: leading
// magic, the length field, and trailing magic.
func (r *FooterReader) minObjectSize() int64 {
	return int64(2*len(r.magic) + footerLengthSize)
}

// trailerSize is the length field plus trailing magic.
func (r *FooterReader) trailerSize() int64 {
	return int64(footerLengthSize + len(r.magic))
}

// Discover runs footer discovery against an object of the given size.
func (r *FooterReader) Discover(ctx context.Context, size int64) (*FooterDescriptor, error) {
	if size < r.minObjectSize() {
		return nil, &Error{
			Kind: KindTooSmall,
			Op:   "footer",
			Err:  fmt.Errorf("object is %d bytes, need at least %d", size, r.minObjectSize()),
		}
	}

	start := time.Now()
	tailLen := min(size, r.maxInitialRead)

	r.listener.StartInitialRequest()
	tail, err := r.read(ctx, size-tailLen, tailLen)
	r.listener.FinishInitialRequest()
	if err != nil {
		return nil, err
	}

	magicAt := int64(len(tail) - len(r.magic))
	if !bytes.Equal(tail[magicAt:], r.magic) {
		return nil, &Error{
			Kind: KindBadMagic,
			Op:   "footer",
			Err:  fmt.Errorf("expected magic %q at tail, found %q", r.magic, tail[magicAt:]),
		}
	}

	lengthAt := magicAt - footerLengthSize
	footerLength := binary.LittleEndian.Uint32(tail[lengthAt:magicAt])
	if int64(footerLength) > r.maxFooterLength {
		return nil, &Error{
			Kind: KindFooterTooLarge,
			Op:   "footer",
			Err:  fmt.Errorf("footer is %d bytes, max supported is %d", footerLength, r.maxFooterLength),
		}
	}
	// The footer must fit in front of the trailer.
	if int64(footerLength) > size-r.trailerSize() {
		return nil, &Error{
			Kind: KindMalformedMetadata,
			Op:   "footer",
			Err:  fmt.Errorf("footer length %d does not fit in a %d byte object", footerLength, size),
		}
	}

	fd := &FooterDescriptor{
		Magic:        append([]byte(nil), r.magic...),
		FooterLength: footerLength,
		RoundTrips:   1,
	}

	inTail := tailLen - r.trailerSize()
	if int64(footerLength) <= inTail {
		begin := inTail - int64(footerLength)
		fd.Metadata = tail[begin:inTail:inTail]
		r.logger.Debug("footer read",
			zap.Uint32("footer_length", footerLength),
			zap.Int("round_trips", fd.RoundTrips),
			zap.Duration("elapsed", time.Since(start)))
		return fd, nil
	}

	// The tail holds only a suffix of the metadata; fetch the rest.
	missing := int64(footerLength) - inTail
	offset := size - int64(footerLength) - r.trailerSize()

	r.listener.StartSecondRequest()
	prefix, err := r.read(ctx, offset, missing)
	r.listener.FinishSecondRequest()
	if err != nil {
		return nil, err
	}

	metadata := make([]byte, footerLength)
	n := copy(metadata, prefix)
	copy(metadata[n:], tail[:inTail])

	fd.Metadata = metadata
	fd.RoundTrips = 2
	r.logger.Debug("footer read",
		zap.Uint32("footer_length", footerLength),
		zap.Int64("second_read_offset", offset),
		zap.Int64("second_read_length", missing),
		zap.Int("round_trips", fd.RoundTrips),
		zap.Duration("elapsed", time.Since(start)))
	return fd, nil
}

// ReadLayout discovers the footer and decodes it into blocks.
func (r *FooterReader) ReadLayout(ctx context.Context, size int64, decoder LayoutDecoder) (*FooterDescriptor, []BlockDescriptor, error) {
	fd, err := r.Discover(ctx, size)
	if err != nil {
		return nil, nil, err
	}
	blocks, err := decoder.DecodeLayout(fd.Metadata)
	if err != nil {
		return fd, nil, &Error{Kind: KindMalformedMetadata, Op: "footer decode", Err: err}
	}
	return fd, blocks, nil
}

func (r *FooterReader) read(ctx context.Context, offset, length int64) ([]byte, error) {
	data, err := r.reader.ReadRange(ctx, offset, length)
	if err != nil {
		return nil, classify("footer read", offset, length, err)
	}
	if int64(len(data)) != length {
		return nil, &Error{
			Kind:   KindRetryable,
			Op:     "footer read",
			Offset: offset,
			Length: length,
			Err:    fmt.Errorf("short read: got %d of %d bytes", len(data), length),
		}
	}
	return data, nil
}
