// Package s3 builds S3 clients for the colfetch command.
package s3

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region (required).
	Region string

	// Endpoint is an optional custom endpoint URL.
	// Used for S3-compatible services (MinIO, LocalStack, R2).
	// Example: "http://localhost:4566" for LocalStack.
	Endpoint string

	// UsePathStyle enables path-style addressing instead of virtual-hosted style.
	// Required for some S3-compatible services (e.g., LocalStack, MinIO with default config).
	UsePathStyle bool

	// AccessKeyID and SecretAccessKey select static credentials.
	// Both must be set, or neither.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Credentials overrides the static keys when set.
	// If neither is given, uses the default credential chain.
	Credentials aws.CredentialsProvider

	// RetryMaxAttempts bounds the SDK's own retries. Zero keeps the SDK
	// default; colfetch applies its own retry budget on top.
	RetryMaxAttempts int

	// MaxConnections sizes the connection pool per host, idle and active.
	// Set it to the number of requests kept in flight. Zero keeps the SDK
	// default of a few idle connections.
	MaxConnections int

	// ConnectTimeout bounds establishing a connection. Zero keeps the SDK default.
	ConnectTimeout time.Duration

	// ReadTimeout bounds one request, including reading its body.
	// Zero means no limit beyond the request context.
	ReadTimeout time.Duration
}

// Validate checks that the configuration is usable.
func (c ClientConfig) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("s3: access key and secret key must be given together")
	}
	if c.RetryMaxAttempts < 0 {
		return errors.New("s3: retry max attempts must not be negative")
	}
	if c.MaxConnections < 0 {
		return errors.New("s3: max connections must not be negative")
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 {
		return errors.New("s3: timeouts must not be negative")
	}
	return nil
}

// credentialsProvider resolves the provider to use, or nil for the
// default chain.
func (c ClientConfig) credentialsProvider() aws.CredentialsProvider {
	if c.Credentials != nil {
		return c.Credentials
	}
	if c.AccessKeyID != "" {
		return credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
	}
	return nil
}

// NewClient creates a new S3 client with the given configuration.
//
// For AWS S3 with the default credential chain:
//
//	client, err := s3client.NewClient(ctx, s3client.ClientConfig{
//	    Region: "us-east-1",
//	})
//
// For MinIO with static keys:
//
//	client, err := s3client.NewClient(ctx, s3client.ClientConfig{
//	    Region:          "us-east-1",
//	    Endpoint:        "http://localhost:9000",
//	    UsePathStyle:    true,
//	    AccessKeyID:     "minioadmin",
//	    SecretAccessKey: "minioadmin",
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(cfg.httpClient()),
	}
	if p := cfg.credentialsProvider(); p != nil {
		opts = append(opts, config.WithCredentialsProvider(p))
	}
	if cfg.RetryMaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, cfg.clientOptions()...), nil
}

// httpClient builds the SDK HTTP client with the pool and timeout settings.
func (c ClientConfig) httpClient() *awshttp.BuildableClient {
	client := awshttp.NewBuildableClient()
	if c.MaxConnections > 0 {
		client = client.WithTransportOptions(func(tr *http.Transport) {
			tr.MaxIdleConns = c.MaxConnections
			tr.MaxIdleConnsPerHost = c.MaxConnections
			tr.MaxConnsPerHost = c.MaxConnections
		})
	}
	if c.ConnectTimeout > 0 {
		client = client.WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = c.ConnectTimeout
		})
	}
	if c.ReadTimeout > 0 {
		client = client.WithTimeout(c.ReadTimeout)
	}
	return client
}

// clientOptions returns the per-client overrides for cfg.
func (c ClientConfig) clientOptions() []func(*s3.Options) {
	var s3Opts []func(*s3.Options)
	if c.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
		})
	}
	if c.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3Opts
}

// NewLocalStackClient creates an S3 client configured for LocalStack.
// Defaults: endpoint=http://localhost:4566, region=us-east-1, credentials=test/test.
func NewLocalStackClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
}

// NewMinIOClient creates an S3 client configured for MinIO.
// Defaults: endpoint=http://localhost:9000, region=us-east-1, credentials=minioadmin/minioadmin.
func NewMinIOClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	})
}
