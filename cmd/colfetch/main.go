// Command colfetch reads a columnar object from S3 with range requests.
//
// Modes:
//
//	footer  discover the footer and print the decoded layout
//	flat    read the whole object as fixed-size pages (alias: async)
//	blocks  read the object block by block, column by column
//
// Run with: go run ./cmd/colfetch blocks my-bucket data/file.parquet us-east-1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pithecene-io/colfetch/colfetch"
	s3reader "github.com/pithecene-io/colfetch/colfetch/s3"
	"github.com/pithecene-io/colfetch/internal/compress"
	"github.com/pithecene-io/colfetch/internal/parquetmeta"
	s3client "github.com/pithecene-io/colfetch/internal/s3"
)

func main() {
	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("read failed", zap.Error(err), zap.String("kind", colfetch.KindOf(err).String()))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *cliConfig, logger *zap.Logger) (err error) {
	reg := prometheus.NewRegistry()
	metrics := colfetch.NewMetrics(reg)
	if cfg.metricsAddr != "" {
		srv := serveMetrics(cfg.metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := s3client.NewClient(ctx, cfg.client)
	if err != nil {
		return fmt.Errorf("creating s3 client: %w", err)
	}
	reader, err := s3reader.New(client, s3reader.Config{
		Bucket:         cfg.bucket,
		Key:            cfg.key,
		RequesterPays:  cfg.requesterPays,
		SSECustomerKey: cfg.sseKey,
		VersionID:      cfg.versionID,
	})
	if err != nil {
		return err
	}

	opts := append(cfg.sessionOptions(),
		colfetch.WithLogger(logger),
		colfetch.WithMetrics(metrics),
		colfetch.WithDecoder(parquetmeta.NewDecoder()),
	)
	session, err := colfetch.Open(ctx, reader.Locator(), reader, reader, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	report := &colfetch.Report{Mode: cfg.mode}
	defer func() {
		if cfg.report == "" {
			return
		}
		r := session.Report()
		r.Mode = report.Mode
		r.FooterLength, r.RoundTrips = report.FooterLength, report.RoundTrips
		r.Blocks = report.Blocks
		r.SetError(err)
		if werr := writeReport(cfg.report, r); werr != nil && err == nil {
			err = werr
		}
	}()

	logger.Info("reading object",
		zap.String("mode", cfg.mode),
		zap.String("object", reader.Locator()),
		zap.Int64("size", session.Object().Size))

	switch cfg.mode {
	case modeFooter:
		return runFooter(ctx, session, report, logger)
	case modeFlat:
		return runFlat(ctx, session, cfg, logger)
	default:
		return runBlocks(ctx, session, cfg, report, logger)
	}
}

func runFooter(ctx context.Context, s *colfetch.Session, report *colfetch.Report, logger *zap.Logger) error {
	layout, err := s.ReadLayout(ctx)
	if err != nil {
		return err
	}
	report.SetFooter(layout.Footer)
	for _, b := range layout.Blocks {
		logger.Info("block",
			zap.Int("index", b.Index),
			zap.Int64("offset", b.StartOffset),
			zap.Int64("size", b.TotalSize),
			zap.Int("columns", len(b.Columns)))
	}
	return nil
}

func runFlat(ctx context.Context, s *colfetch.Session, cfg *cliConfig, logger *zap.Logger) error {
	size := s.Object().Size

	// Uncompressed spools are written in place, page by page.
	if cfg.out != "" && cfg.compress == "none" {
		f, err := os.Create(cfg.out)
		if err != nil {
			return fmt.Errorf("creating spool file: %w", err)
		}
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return fmt.Errorf("sizing spool file: %w", err)
		}
		readErr := s.ReadObject(ctx, f)
		if err := f.Close(); err != nil && readErr == nil {
			return err
		}
		return readErr
	}

	data, err := s.ReadObjectAsync(ctx).Wait(ctx)
	if err != nil {
		return err
	}
	logger.Info("object read", zap.Int("bytes", len(data)))
	if cfg.out == "" {
		return nil
	}
	return spool(cfg.out, cfg.compress, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func runBlocks(ctx context.Context, s *colfetch.Session, cfg *cliConfig, report *colfetch.Report, logger *zap.Logger) error {
	layout, err := s.ReadLayout(ctx)
	if err != nil {
		return err
	}
	report.SetFooter(layout.Footer)

	results, err := s.ReadBlocksAsync(ctx, layout.Blocks).Wait(ctx)
	report.AddBlocks(results)
	if err != nil {
		return err
	}

	var total int64
	for _, r := range results {
		total += r.Buffer.Written()
	}
	logger.Info("blocks read", zap.Int("blocks", len(results)), zap.Int64("bytes", total))

	if cfg.out == "" {
		return nil
	}
	return spool(cfg.out, cfg.compress, func(w io.Writer) error {
		for _, r := range results {
			if _, err := w.Write(r.Buffer.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// spool writes through the named compressor into path.
func spool(path, codec string, write func(io.Writer) error) (err error) {
	c, err := compress.ByName(codec)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w, err := c.Compress(f)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing spool file: %w", err)
	}
	return w.Close()
}

func writeReport(path string, r *colfetch.Report) error {
	if path == "-" {
		return r.Encode(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := r.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
