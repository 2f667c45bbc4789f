package colfetch

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Session Configuration
// -----------------------------------------------------------------------------

// sessionConfig holds the resolved configuration for a session.
type sessionConfig struct {
	maxInitialRead  int64
	maxFooterLength int64
	magic           []byte

	chunkSize     int64
	pageSize      int64
	columnWorkers int
	blockWorkers  int
	flatWorkers   int
	maxInFlight   int
	failFast      bool

	retries     int
	backoffBase time.Duration
	backoffMax  time.Duration

	logger   *zap.Logger
	metrics  *Metrics
	listener FooterListener
	decoder  LayoutDecoder
}

func defaultConfig() sessionConfig {
	return sessionConfig{
		maxInitialRead:  DefaultMaxInitialRead,
		maxFooterLength: DefaultMaxFooterLength,
		magic:           ParquetMagic,
		chunkSize:       DefaultChunkSize,
		pageSize:        DefaultPageSize,
		columnWorkers:   DefaultColumnWorkers,
		blockWorkers:    DefaultBlockWorkers,
		flatWorkers:     DefaultFlatWorkers,
		maxInFlight:     DefaultMaxInFlight,
		retries:         DefaultRetries,
		logger:          zap.NewNop(),
		listener:        NopFooterListener{},
	}
}

// newConfig applies opts over the defaults and validates the result.
// Nil options are skipped.
func newConfig(opts []Option) (sessionConfig, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.validate()
}

// ValidateOptions reports whether opts would be accepted by NewSession,
// without creating a session or issuing any request.
func ValidateOptions(opts ...Option) error {
	_, err := newConfig(opts)
	return err
}

// validate rejects settings that cannot produce a working session.
func (c *sessionConfig) validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %d)", name, v))
		}
	}
	positive("max initial read", c.maxInitialRead)
	positive("max footer length", c.maxFooterLength)
	positive("chunk size", c.chunkSize)
	positive("page size", c.pageSize)
	positive("column workers", int64(c.columnWorkers))
	positive("block workers", int64(c.blockWorkers))
	positive("flat workers", int64(c.flatWorkers))
	positive("max in-flight requests", int64(c.maxInFlight))

	if c.chunkSize > maxRequestLength {
		errs = append(errs, fmt.Errorf("chunk size exceeds %d (got %d)", maxRequestLength, c.chunkSize))
	}
	if c.pageSize > maxRequestLength {
		errs = append(errs, fmt.Errorf("page size exceeds %d (got %d)", maxRequestLength, c.pageSize))
	}
	if c.maxInitialRead > maxRequestLength {
		errs = append(errs, fmt.Errorf("max initial read exceeds %d (got %d)", maxRequestLength, c.maxInitialRead))
	}
	if len(c.magic) == 0 {
		errs = append(errs, errors.New("magic must not be empty"))
	}
	if c.maxInitialRead > 0 && c.maxInitialRead < int64(footerLengthSize+len(c.magic)) {
		errs = append(errs, fmt.Errorf("max initial read %d cannot hold the footer trailer", c.maxInitialRead))
	}
	if c.retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative (got %d)", c.retries))
	}
	switch {
	case c.backoffBase < 0 || c.backoffMax < 0:
		errs = append(errs, errors.New("retry backoff must not be negative"))
	case c.backoffBase > 0 && c.backoffMax < c.backoffBase:
		errs = append(errs, fmt.Errorf("retry backoff cap %s is below the base delay %s", c.backoffMax, c.backoffBase))
	}
	if c.logger == nil {
		errs = append(errs, errors.New("logger must not be nil"))
	}
	if c.listener == nil {
		errs = append(errs, errors.New("footer listener must not be nil"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("colfetch: invalid session options: %w", errors.Join(errs...))
	}
	return nil
}

// Option configures a Session.
type Option interface {
	apply(*sessionConfig) error
}

type optionFunc func(*sessionConfig) error

func (f optionFunc) apply(c *sessionConfig) error { return f(c) }

// WithMaxInitialRead sets the size of the opportunistic tail read used for
// footer discovery. Default: 1 MiB.
func WithMaxInitialRead(n int64) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.maxInitialRead = n
		return nil
	})
}

// WithMaxFooterLength sets the largest footer accepted. Default: 16 MiB.
func WithMaxFooterLength(n int64) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.maxFooterLength = n
		return nil
	})
}

// WithMagic sets the container's magic token. Default: "PAR1".
func WithMagic(magic []byte) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.magic = append([]byte(nil), magic...)
		return nil
	})
}

// WithChunkSize sets the per-request cap for column reads.
// Default: 1,000,000 bytes.
func WithChunkSize(n int64) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.chunkSize = n
		return nil
	})
}

// WithPageSize sets the page size for flat reads. Default: 1 MiB.
func WithPageSize(n int64) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.pageSize = n
		return nil
	})
}

// WithRetries sets how many times a retryable failure is retried.
// Default: 1 (two attempts).
func WithRetries(n int) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.retries = n
		return nil
	})
}

// WithRetryBackoff enables jittered exponential backoff between attempts,
// starting at base and capped at maxDelay. maxDelay must be at least base
// when base is positive. Default: no delay.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.backoffBase, c.backoffMax = base, maxDelay
		return nil
	})
}

// WithColumnWorkers bounds concurrent columns within a block. Default: 10.
func WithColumnWorkers(n int) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.columnWorkers = n
		return nil
	})
}

// WithBlockWorkers bounds concurrent blocks within an object. Default: 4.
func WithBlockWorkers(n int) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.blockWorkers = n
		return nil
	})
}

// WithFlatWorkers bounds concurrent pages in a flat read. Default: 16.
func WithFlatWorkers(n int) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.flatWorkers = n
		return nil
	})
}

// WithMaxInFlight bounds concurrent range requests across the whole
// session. Default: 64.
func WithMaxInFlight(n int) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.maxInFlight = n
		return nil
	})
}

// WithFailFast makes the first failure in a fan-out cancel its siblings.
// Default: off, every sibling runs to completion.
func WithFailFast(on bool) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.failFast = on
		return nil
	})
}

// WithLogger sets the session logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.logger = l
		return nil
	})
}

// WithMetrics records request metrics. Default: none.
func WithMetrics(m *Metrics) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.metrics = m
		return nil
	})
}

// WithFooterListener observes footer discovery round trips.
func WithFooterListener(l FooterListener) Option {
	return optionFunc(func(c *sessionConfig) error {
		c.listener = l
		return nil
	})
}

// WithDecoder sets the layout decoder used by ReadLayout and Read.
// Default: none, so Read falls back to flat pages.
func WithDecoder(d LayoutDecoder) Option {
	return optionFunc(func(c *sessionConfig) error {
		if d == nil {
			return errors.New("colfetch: decoder must not be nil")
		}
		c.decoder = d
		return nil
	})
}
