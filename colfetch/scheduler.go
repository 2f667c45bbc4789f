package colfetch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler defaults.
const (
	// DefaultPageSize is the page size for flat reads.
	DefaultPageSize = 1 << 20 // 1 MiB

	// DefaultColumnWorkers bounds concurrent columns within one block.
	DefaultColumnWorkers = 10

	// DefaultBlockWorkers bounds concurrent blocks within one object.
	DefaultBlockWorkers = 4

	// DefaultFlatWorkers bounds concurrent pages in a flat read.
	DefaultFlatWorkers = 16
)

// Scheduler decomposes an object into range requests and runs them
// concurrently.
//
// Two strategies are available. ReadFlat covers [0, size) with fixed-size
// pages and needs no layout. ReadBlocks uses a decoded layout and fetches
// each block's columns through a ChunkSplitter.
//
// Sub-tasks of a fan-out never cancel their siblings unless fail-fast is
// enabled: every sibling runs to completion, failures are counted, and the
// aggregate is returned once the whole fan-out has settled.
type Scheduler struct {
	fetcher  *RetryingFetcher
	splitter *ChunkSplitter

	pageSize      int64
	flatWorkers   int
	blockWorkers  int
	columnWorkers int
	failFast      bool

	logger *zap.Logger
}

// BlockResult is the outcome of reading one block.
type BlockResult struct {
	Block   BlockDescriptor
	Buffer  *BlockBuffer
	Start   time.Time
	Elapsed time.Duration
	Err     error
}

// Pages returns the page requests covering [0, size). The last page is
// short when size is not a multiple of pageSize.
func Pages(size, pageSize int64) []RangeRequest {
	if size <= 0 || pageSize <= 0 {
		return nil
	}
	pages := make([]RangeRequest, 0, (size+pageSize-1)/pageSize)
	for off := int64(0); off < size; off += pageSize {
		pages = append(pages, RangeRequest{Offset: off, Length: min(pageSize, size-off)})
	}
	return pages
}

// fanout returns the context for one fan-out's sub-tasks. Under fail-fast
// the returned cancel is invoked on the first failure.
func (s *Scheduler) fanout(ctx context.Context) (context.Context, context.CancelFunc) {
	if !s.failFast {
		return ctx, func() {}
	}
	return context.WithCancel(ctx)
}

// ReadFlat reads [0, size) as pages and writes each page into dst at its
// own offset. Pages are fetched concurrently and never share a buffer.
func (s *Scheduler) ReadFlat(ctx context.Context, size int64, dst io.WriterAt) error {
	pages := Pages(size, s.pageSize)
	ctx, cancel := s.fanout(ctx)
	defer cancel()

	var (
		mu sync.Mutex
		t  = tally{scope: "pages", total: len(pages)}
		g  errgroup.Group
	)
	g.SetLimit(s.flatWorkers)

	start := time.Now()
	for i, p := range pages {
		g.Go(func() error {
			if err := s.readPage(ctx, p, dst); err != nil {
				s.logger.Warn("page read failed",
					zap.Int("page", i),
					zap.Int64("offset", p.Offset),
					zap.Int64("length", p.Length),
					zap.Error(err))
				mu.Lock()
				t.add(err)
				mu.Unlock()
				if KindOf(err) != KindCanceled {
					cancel()
				}
			}
			// Errors are collected in t; returning nil keeps siblings running.
			return nil
		})
	}
	_ = g.Wait()

	err := t.err()
	s.logger.Info("flat read finished",
		zap.Int64("size", size),
		zap.Int("pages", len(pages)),
		zap.Int("failed", t.failed),
		zap.Int("cancelled", t.cancelled),
		zap.Duration("elapsed", time.Since(start)))
	return err
}

func (s *Scheduler) readPage(ctx context.Context, p RangeRequest, dst io.WriterAt) error {
	data, err := s.fetcher.Fetch(ctx, p.Offset, p.Length)
	if err != nil {
		return err
	}
	n, err := dst.WriteAt(data, p.Offset)
	if err != nil {
		return classify("page write", p.Offset, p.Length, err)
	}
	if n != len(data) {
		return &Error{Kind: KindGap, Op: "page write", Offset: p.Offset, Length: p.Length,
			Err: fmt.Errorf("wrote %d of %d bytes", n, len(data))}
	}
	return nil
}

// ReadBlocks reads every block of a layout. Blocks run concurrently, as do
// the columns within each block.
//
// The returned results are in layout order and always cover every block,
// including failed ones. The error is an *AggregateError scoped "object"
// when any block failed.
func (s *Scheduler) ReadBlocks(ctx context.Context, blocks []BlockDescriptor) ([]*BlockResult, error) {
	ctx, cancel := s.fanout(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		t       = tally{scope: "object", total: len(blocks)}
		g       errgroup.Group
		results = make([]*BlockResult, len(blocks))
	)
	g.SetLimit(s.blockWorkers)

	for i, b := range blocks {
		g.Go(func() error {
			start := time.Now()
			buf, err := s.ReadBlock(ctx, b)
			results[i] = &BlockResult{Block: b, Buffer: buf, Start: start, Elapsed: time.Since(start), Err: err}
			if err != nil {
				mu.Lock()
				t.add(err)
				mu.Unlock()
				if KindOf(err) != KindCanceled {
					cancel()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, t.err()
}

// ReadBlock fetches one block's columns into a new buffer.
//
// Column ranges are validated before any request is issued. Each column is
// written at FirstReadOffset-StartOffset within the block buffer. Once all
// columns settle, the bytes written must equal the sum of the column sizes,
// otherwise the block has a gap. Bytes of the block that no column covers
// stay zero.
func (s *Scheduler) ReadBlock(ctx context.Context, b BlockDescriptor) (*BlockBuffer, error) {
	if err := validateBlock(b); err != nil {
		return nil, err
	}

	ctx, cancel := s.fanout(ctx)
	defer cancel()

	var want int64
	dispatched := 0
	for _, c := range b.Columns {
		if c.TotalSize > 0 {
			want += c.TotalSize
			dispatched++
		}
	}

	var (
		buf = newBlockBuffer(b)
		mu  sync.Mutex
		t   = tally{scope: "block", total: dispatched}
		g   errgroup.Group
	)
	g.SetLimit(s.columnWorkers)

	start := time.Now()
	for _, c := range b.Columns {
		if c.TotalSize == 0 {
			continue
		}
		g.Go(func() error {
			n, err := s.splitter.FetchRange(ctx, c.FirstReadOffset, c.TotalSize, buf.data, c.FirstReadOffset-b.StartOffset)
			buf.record(n)
			if err != nil {
				s.logger.Warn("column read failed",
					zap.Int("block", b.Index),
					zap.String("column", c.Path),
					zap.Int64("offset", c.FirstReadOffset),
					zap.Int64("length", c.TotalSize),
					zap.Error(err))
				mu.Lock()
				t.add(err)
				mu.Unlock()
				if KindOf(err) != KindCanceled {
					cancel()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	err := t.err()
	if gap := buf.checkCoverage(want); gap != nil {
		if err == nil {
			err = gap
		} else {
			t.note(gap)
			err = t.err()
		}
	}
	s.logger.Info("block read finished",
		zap.Int("block", b.Index),
		zap.Int("columns", dispatched),
		zap.Int64("written", buf.Written()),
		zap.Int64("expected", want),
		zap.Int64("size", b.TotalSize),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return buf, err
}

// validateBlock checks a block's column layout before fetching.
func validateBlock(b BlockDescriptor) error {
	if b.StartOffset < 0 || b.TotalSize < 0 {
		return &Error{Kind: KindMalformedMetadata, Op: "layout",
			Err: fmt.Errorf("block %d has offset %d and size %d", b.Index, b.StartOffset, b.TotalSize)}
	}
	ranges := make([]RangeRequest, 0, len(b.Columns))
	for _, c := range b.Columns {
		if c.TotalSize < 0 || c.FirstReadOffset < c.StartOffset {
			return &Error{Kind: KindMalformedMetadata, Op: "layout",
				Err: fmt.Errorf("block %d column %q: first read offset %d before start %d or negative size %d",
					b.Index, c.Path, c.FirstReadOffset, c.StartOffset, c.TotalSize)}
		}
		ranges = append(ranges, RangeRequest{Offset: c.FirstReadOffset, Length: c.TotalSize})
	}
	return validateNoOverlaps(ranges, b.StartOffset, b.End())
}
