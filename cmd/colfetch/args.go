package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pithecene-io/colfetch/colfetch"
	s3reader "github.com/pithecene-io/colfetch/colfetch/s3"
	s3client "github.com/pithecene-io/colfetch/internal/s3"
)

// Read modes.
const (
	modeFooter = "footer"
	modeFlat   = "flat"
	modeBlocks = "blocks"
)

// S3 HTTP client timeouts.
const (
	defaultConnectTimeout = 100 * time.Second
	defaultReadTimeout    = 100 * time.Second
)

const usageLine = "usage: colfetch [flags] <footer|flat|async|blocks> <bucket> <key> <region> [accessKey secretKey] [region] [endpoint]"

// cliConfig is the parsed command line.
type cliConfig struct {
	mode   string
	bucket string
	key    string
	client s3client.ClientConfig

	out      string
	compress string
	report   string
	verbose  bool
	timeout  time.Duration

	metricsAddr string

	requesterPays bool
	sseKey        []byte
	versionID     string

	chunkSize     int64
	pageSize      int64
	columnWorkers int
	blockWorkers  int
	flatWorkers   int
	maxInFlight   int
	retries       int
	failFast      bool
}

// parseArgs parses args (without the program name). Errors are reported
// before any I/O is attempted.
func parseArgs(args []string, stderr io.Writer) (*cliConfig, error) {
	cfg := &cliConfig{}
	var sseKey string

	fs := flag.NewFlagSet("colfetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.out, "out", "", "spool fetched bytes to this file")
	fs.StringVar(&cfg.compress, "compress", "none", "spool compression: none, gzip, or zstd")
	fs.StringVar(&cfg.report, "report", "", "write a JSON run report to this file (- for stdout)")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose development logging")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "overall deadline for the read (0 for none)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	fs.BoolVar(&cfg.requesterPays, "requester-pays", false, "send requests as requester-pays")
	fs.StringVar(&sseKey, "sse-c-key", "", "base64 AES-256 key for SSE-C objects")
	fs.StringVar(&cfg.versionID, "version-id", "", "read this object version")

	fs.Int64Var(&cfg.chunkSize, "chunk-size", colfetch.DefaultChunkSize, "max bytes per column request")
	fs.Int64Var(&cfg.pageSize, "page-size", colfetch.DefaultPageSize, "page size for flat reads")
	fs.IntVar(&cfg.columnWorkers, "column-workers", colfetch.DefaultColumnWorkers, "concurrent columns per block")
	fs.IntVar(&cfg.blockWorkers, "block-workers", colfetch.DefaultBlockWorkers, "concurrent blocks")
	fs.IntVar(&cfg.flatWorkers, "flat-workers", colfetch.DefaultFlatWorkers, "concurrent pages in flat mode")
	fs.IntVar(&cfg.maxInFlight, "max-in-flight", colfetch.DefaultMaxInFlight, "max concurrent range requests")
	fs.IntVar(&cfg.retries, "retries", colfetch.DefaultRetries, "retries per request for transient failures")
	fs.BoolVar(&cfg.failFast, "fail-fast", false, "cancel sibling requests on the first failure")
	fs.DurationVar(&cfg.client.ConnectTimeout, "connect-timeout", defaultConnectTimeout, "S3 connection timeout (0 for the SDK default)")
	fs.DurationVar(&cfg.client.ReadTimeout, "read-timeout", defaultReadTimeout, "per-request S3 timeout (0 for none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	pos := fs.Args()
	switch len(pos) {
	case 4, 6, 7, 8:
	default:
		return nil, fmt.Errorf("expected 4, 6, 7, or 8 positional arguments, got %d\n%s", len(pos), usageLine)
	}

	mode, err := parseMode(pos[0])
	if err != nil {
		return nil, err
	}
	cfg.mode = mode
	cfg.bucket = pos[1]
	cfg.key = strings.TrimPrefix(pos[2], "/")
	cfg.client.Region = pos[3]
	if len(pos) >= 6 {
		cfg.client.AccessKeyID = pos[4]
		cfg.client.SecretAccessKey = pos[5]
	}
	if len(pos) >= 7 {
		cfg.client.Region = pos[6]
	}
	if len(pos) == 8 {
		cfg.client.Endpoint = pos[7]
		cfg.client.UsePathStyle = true
	}

	// One pooled connection per in-flight request. Non-positive values are
	// rejected with the session options below.
	if cfg.maxInFlight > 0 {
		cfg.client.MaxConnections = cfg.maxInFlight
	}

	if cfg.bucket == "" || cfg.key == "" {
		return nil, errors.New("bucket and key must not be empty")
	}
	if err := cfg.client.Validate(); err != nil {
		return nil, err
	}
	switch cfg.compress {
	case "none", "gzip", "zstd":
	default:
		return nil, fmt.Errorf("unknown -compress %q (want none, gzip, or zstd)", cfg.compress)
	}
	if sseKey != "" {
		key, err := base64.StdEncoding.DecodeString(sseKey)
		if err != nil {
			return nil, fmt.Errorf("decoding -sse-c-key: %w", err)
		}
		if len(key) != s3reader.SSECustomerKeyLength {
			return nil, fmt.Errorf("-sse-c-key must decode to %d bytes (got %d)", s3reader.SSECustomerKeyLength, len(key))
		}
		cfg.sseKey = key
	}
	if cfg.timeout < 0 {
		return nil, errors.New("-timeout must not be negative")
	}
	if err := colfetch.ValidateOptions(cfg.sessionOptions()...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseMode(s string) (string, error) {
	switch strings.ToLower(s) {
	case modeFooter:
		return modeFooter, nil
	case modeFlat, "async":
		return modeFlat, nil
	case modeBlocks:
		return modeBlocks, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want footer, flat, async, or blocks)", s)
	}
}

// sessionOptions maps tunables to session options. parseArgs rejects
// values colfetch would refuse, so a bad flag fails before any request.
func (c *cliConfig) sessionOptions() []colfetch.Option {
	return []colfetch.Option{
		colfetch.WithChunkSize(c.chunkSize),
		colfetch.WithPageSize(c.pageSize),
		colfetch.WithColumnWorkers(c.columnWorkers),
		colfetch.WithBlockWorkers(c.blockWorkers),
		colfetch.WithFlatWorkers(c.flatWorkers),
		colfetch.WithMaxInFlight(c.maxInFlight),
		colfetch.WithRetries(c.retries),
		colfetch.WithFailFast(c.failFast),
	}
}
