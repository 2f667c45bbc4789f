package colfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrNoDecoder is returned by layout operations on a session created
// without WithDecoder.
var ErrNoDecoder = errors.New("colfetch: no layout decoder configured")

// Layout is a discovered footer together with the blocks decoded from it.
type Layout struct {
	Footer *FooterDescriptor
	Blocks []BlockDescriptor
}

// Outcome is the result of Session.Read.
type Outcome struct {
	// Layout is set when the layout-aware strategy was used.
	Layout *Layout

	// Blocks holds per-block results for a layout-aware read.
	Blocks []*BlockResult

	// Data holds the object bytes for a flat read.
	Data []byte
}

// Session reads one object. It owns an Executor that bounds in-flight
// requests for every operation issued through the session, and is closed
// with Close.
//
// A Session is safe for concurrent use.
type Session struct {
	object ObjectDescriptor
	cfg    sessionConfig

	exec      *Executor
	fetcher   *RetryingFetcher
	footer    *FooterReader
	scheduler *Scheduler
	stats     *statRecorder
	logger    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open looks up the object's size once and creates a session for it.
func Open(ctx context.Context, locator string, reader RangeReader, sizer SizeLookup, opts ...Option) (*Session, error) {
	if sizer == nil {
		return nil, errors.New("colfetch: size lookup is required")
	}
	if err := ValidateOptions(opts...); err != nil {
		return nil, err
	}
	size, err := sizer.Size(ctx)
	if err != nil {
		return nil, classify("size", 0, 0, err)
	}
	return NewSession(ObjectDescriptor{Locator: locator, Size: size}, reader, opts...)
}

// NewSession creates a session for an object of known size.
//
// Defaults:
//   - footer: "PAR1" magic, 1 MiB tail read, 16 MiB max footer
//   - chunks of 1,000,000 bytes, flat pages of 1 MiB
//   - 4 block workers, 10 column workers, 16 flat workers
//   - 64 requests in flight, 1 retry, no backoff, no fail-fast
func NewSession(obj ObjectDescriptor, reader RangeReader, opts ...Option) (*Session, error) {
	if reader == nil {
		return nil, errors.New("colfetch: range reader is required")
	}
	if obj.Size < 0 {
		return nil, fmt.Errorf("colfetch: object size must not be negative (got %d)", obj.Size)
	}

	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	exec, err := NewExecutor(cfg.maxInFlight)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger.With(zap.String("object", obj.Locator))

	fetcher := NewRetryingFetcher(reader, cfg.retries, exec, cfg.metrics, logger.Named("fetch")).
		withBackoff(cfg.backoffBase, cfg.backoffMax)

	splitter, err := NewChunkSplitter(fetcher, cfg.chunkSize, logger.Named("chunk"))
	if err != nil {
		return nil, err
	}

	footer := NewFooterReader(fetcher)
	footer.magic = cfg.magic
	footer.maxInitialRead = cfg.maxInitialRead
	footer.maxFooterLength = cfg.maxFooterLength
	footer.listener = cfg.listener
	footer.logger = logger.Named("footer")

	return &Session{
		object:  obj,
		cfg:     cfg,
		exec:    exec,
		fetcher: fetcher,
		footer:  footer,
		scheduler: &Scheduler{
			fetcher:       fetcher,
			splitter:      splitter,
			pageSize:      cfg.pageSize,
			flatWorkers:   cfg.flatWorkers,
			blockWorkers:  cfg.blockWorkers,
			columnWorkers: cfg.columnWorkers,
			failFast:      cfg.failFast,
			logger:        logger.Named("scheduler"),
		},
		stats:  &statRecorder{},
		logger: logger,
	}, nil
}

// Object returns the object the session reads.
func (s *Session) Object() ObjectDescriptor { return s.object }

// Scheduler returns the session's scheduler.
func (s *Session) Scheduler() *Scheduler { return s.scheduler }

// ReadFooter discovers the object's footer.
func (s *Session) ReadFooter(ctx context.Context) (*FooterDescriptor, error) {
	defer s.stats.time("footer")()
	return s.footer.Discover(ctx, s.object.Size)
}

// ReadLayout discovers the footer and decodes it with the session's
// decoder.
func (s *Session) ReadLayout(ctx context.Context) (*Layout, error) {
	if s.cfg.decoder == nil {
		return nil, ErrNoDecoder
	}
	defer s.stats.time("layout")()
	fd, blocks, err := s.footer.ReadLayout(ctx, s.object.Size, s.cfg.decoder)
	if err != nil {
		return nil, err
	}
	s.logger.Info("layout decoded",
		zap.Uint32("footer_length", fd.FooterLength),
		zap.Int("round_trips", fd.RoundTrips),
		zap.Int("blocks", len(blocks)))
	return &Layout{Footer: fd, Blocks: blocks}, nil
}

// ReadObject reads the whole object as flat pages into dst.
func (s *Session) ReadObject(ctx context.Context, dst io.WriterAt) error {
	defer s.stats.time("flat")()
	return s.scheduler.ReadFlat(ctx, s.object.Size, dst)
}

// ReadBlocks reads the given blocks.
func (s *Session) ReadBlocks(ctx context.Context, blocks []BlockDescriptor) ([]*BlockResult, error) {
	defer s.stats.time("blocks")()
	results, err := s.scheduler.ReadBlocks(ctx, blocks)
	for _, r := range results {
		if r != nil {
			s.stats.add(fmt.Sprintf("block %d", r.Block.Index), r.Start, r.Elapsed)
		}
	}
	return results, err
}

// Read reads the object with the best available strategy: layout-aware
// when a decoder is configured and the layout has blocks, flat pages
// otherwise. Footer failures end the read.
func (s *Session) Read(ctx context.Context) (*Outcome, error) {
	if s.cfg.decoder != nil {
		layout, err := s.ReadLayout(ctx)
		if err != nil {
			return nil, err
		}
		if len(layout.Blocks) > 0 {
			results, err := s.ReadBlocks(ctx, layout.Blocks)
			return &Outcome{Layout: layout, Blocks: results}, err
		}
		s.logger.Info("layout has no blocks, reading flat")
	}

	buf := NewBuffer(s.object.Size)
	if err := s.ReadObject(ctx, buf); err != nil {
		return &Outcome{Data: buf.Bytes()}, err
	}
	return &Outcome{Data: buf.Bytes()}, nil
}

// -----------------------------------------------------------------------------
// Asynchronous variants
// -----------------------------------------------------------------------------

// ReadFooterAsync runs ReadFooter on the session's executor.
func (s *Session) ReadFooterAsync(ctx context.Context) *Future[*FooterDescriptor] {
	return Go(ctx, s.exec, s.ReadFooter)
}

// ReadLayoutAsync runs ReadLayout on the session's executor.
func (s *Session) ReadLayoutAsync(ctx context.Context) *Future[*Layout] {
	return Go(ctx, s.exec, s.ReadLayout)
}

// ReadObjectAsync reads the object as flat pages into a new buffer.
func (s *Session) ReadObjectAsync(ctx context.Context) *Future[[]byte] {
	return Go(ctx, s.exec, func(ctx context.Context) ([]byte, error) {
		buf := NewBuffer(s.object.Size)
		err := s.ReadObject(ctx, buf)
		return buf.Bytes(), err
	})
}

// ReadBlocksAsync runs ReadBlocks on the session's executor.
func (s *Session) ReadBlocksAsync(ctx context.Context, blocks []BlockDescriptor) *Future[[]*BlockResult] {
	return Go(ctx, s.exec, func(ctx context.Context) ([]*BlockResult, error) {
		return s.ReadBlocks(ctx, blocks)
	})
}

// ReadBlockAsync reads a single block on the session's executor.
func (s *Session) ReadBlockAsync(ctx context.Context, b BlockDescriptor) *Future[*BlockBuffer] {
	return Go(ctx, s.exec, func(ctx context.Context) (*BlockBuffer, error) {
		return s.scheduler.ReadBlock(ctx, b)
	})
}

// Report returns timings for the operations run so far.
func (s *Session) Report() *Report {
	return &Report{
		Locator: s.object.Locator,
		Size:    s.object.Size,
		Stats:   s.stats.snapshot(),
	}
}

// Close waits for outstanding asynchronous operations and releases the
// executor. Async calls made after Close fail with ErrExecutorClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.exec.Close()
	})
	return s.closeErr
}
