package colfetch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultChunkSize is the largest single request issued for a column.
const DefaultChunkSize = 1_000_000

// ChunkSplitter fetches a range larger than the per-request cap as a
// sequence of capped requests and merges them into one destination.
//
// Chunks of one range are fetched one after another: the object store's
// request-size limit is the constraint, and parallelism comes from running
// many ranges at once.
type ChunkSplitter struct {
	fetcher   *RetryingFetcher
	chunkSize int64
	logger    *zap.Logger
}

// NewChunkSplitter creates a splitter issuing requests of at most chunkSize
// bytes through fetcher.
func NewChunkSplitter(fetcher *RetryingFetcher, chunkSize int64, logger *zap.Logger) (*ChunkSplitter, error) {
	if chunkSize <= 0 || chunkSize > maxRequestLength {
		return nil, fmt.Errorf("colfetch: chunk size must be in (0, %d] (got %d)", maxRequestLength, chunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChunkSplitter{fetcher: fetcher, chunkSize: chunkSize, logger: logger}, nil
}

// Chunks returns the requests that cover [offset, offset+totalLength) in
// order. The requests tile the range exactly: no gaps, no overlaps.
func (s *ChunkSplitter) Chunks(offset, totalLength int64) []RangeRequest {
	if totalLength <= 0 {
		return nil
	}
	n := (totalLength + s.chunkSize - 1) / s.chunkSize
	chunks := make([]RangeRequest, 0, n)
	for remaining := totalLength; remaining > 0; {
		length := min(remaining, s.chunkSize)
		chunks = append(chunks, RangeRequest{Offset: offset, Length: length})
		offset += length
		remaining -= length
	}
	return chunks
}

// FetchRange reads [offset, offset+totalLength) into dst starting at
// dstBase, and returns the number of bytes written.
//
// A failed chunk does not stop the chunks after it. If ctx is cancelled no
// further chunks are issued and the unissued ones count as cancelled. Any
// failure is reported as an *AggregateError scoped "column" once every
// issued chunk has settled.
func (s *ChunkSplitter) FetchRange(ctx context.Context, offset, totalLength int64, dst []byte, dstBase int64) (int64, error) {
	if totalLength <= 0 {
		return 0, fmt.Errorf("colfetch: chunked range length must be positive (got %d)", totalLength)
	}
	if dstBase < 0 || totalLength > int64(len(dst))-dstBase {
		return 0, &Error{
			Kind:   KindOverlap,
			Op:     "chunk",
			Offset: offset,
			Length: totalLength,
			Err:    fmt.Errorf("destination [%d, %d) exceeds buffer of %d bytes", dstBase, dstBase+totalLength, len(dst)),
		}
	}

	t := tally{scope: "column"}
	var written int64

	// Loop state: source offset, bytes left, destination cursor.
	src, remaining, cursor := offset, totalLength, dstBase
	for remaining > 0 {
		length := min(remaining, s.chunkSize)
		t.total++

		if err := ctx.Err(); err != nil {
			t.add(classify("chunk", src, length, err))
		} else {
			data, err := s.fetcher.Fetch(ctx, src, length)
			if err == nil {
				err = Place(dst, cursor, data)
			}
			if err != nil {
				s.logger.Debug("chunk failed",
					zap.Int64("offset", src),
					zap.Int64("length", length),
					zap.Error(err))
				t.add(err)
			} else {
				written += length
			}
		}

		src += length
		remaining -= length
		cursor += length
	}
	return written, t.err()
}
