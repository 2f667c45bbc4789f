// Package s3 provides an S3-compatible range reader for colfetch.
//
// This adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores.
//
// # Requests
//
//   - ReadRange: one GetObject per call with an inclusive HTTP Range header
//   - Size: one HeadObject, issued once per session
//
// Both requests carry the configured modifiers: requester-pays, SSE-C
// customer key, object version, and If-Unmodified-Since.
//
// # Error Classification
//
// Transport failures are reported as *colfetch.Error values:
//
//   - 404 / NoSuchKey / NoSuchBucket: KindNotFound
//   - 412 / PreconditionFailed: KindVersionChanged
//   - 403 / AccessDenied: KindAccessDenied
//   - 5xx / 429 / throttling / timeouts / truncated body: KindRetryable
//   - anything else: KindOther, with the HTTP status when one is known
package s3

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/colfetch/colfetch"
)

// sseAlgorithm is the only server-side encryption algorithm S3 accepts for
// customer-provided keys.
const sseAlgorithm = "AES256"

// SSECustomerKeyLength is the required SSE-C key length: an AES-256 key.
const SSECustomerKeyLength = 32

// API defines the subset of the S3 client interface used by the reader.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 reader.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Key is the object key. Required.
	Key string

	// RequesterPays marks requests as paid by the requester.
	RequesterPays bool

	// SSECustomerKey is a raw 32-byte AES-256 key for objects encrypted
	// with a customer-provided key.
	SSECustomerKey []byte

	// VersionID pins reads to one object version.
	VersionID string

	// IfUnmodifiedSince fails reads with KindVersionChanged when the
	// object was modified after this time.
	IfUnmodifiedSince time.Time
}

// Reader implements colfetch.RangeReader and colfetch.SizeLookup for one
// S3 object.
type Reader struct {
	client API
	cfg    Config

	// precomputed SSE-C headers
	sseKey    string
	sseKeyMD5 string
}

// New creates a new S3 reader with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use github.com/aws/aws-sdk-go-v2/config to load configuration.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	reader, err := s3reader.New(client, s3reader.Config{Bucket: "b", Key: "k"})
func New(client API, cfg Config) (*Reader, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("s3: key is required")
	}

	r := &Reader{client: client, cfg: cfg}
	if len(cfg.SSECustomerKey) > 0 {
		if len(cfg.SSECustomerKey) != SSECustomerKeyLength {
			return nil, fmt.Errorf("s3: SSE-C key must be %d bytes (got %d)", SSECustomerKeyLength, len(cfg.SSECustomerKey))
		}
		sum := md5.Sum(cfg.SSECustomerKey)
		r.sseKey = base64.StdEncoding.EncodeToString(cfg.SSECustomerKey)
		r.sseKeyMD5 = base64.StdEncoding.EncodeToString(sum[:])
	}
	return r, nil
}

// Locator returns the object's s3:// URL.
func (r *Reader) Locator() string {
	return "s3://" + r.cfg.Bucket + "/" + strings.TrimPrefix(r.cfg.Key, "/")
}

// ReadRange reads exactly length bytes starting at offset.
func (r *Reader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if offset < 0 || length <= 0 {
		return nil, fmt.Errorf("s3: invalid range (offset=%d, length=%d)", offset, length)
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	in := &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(r.cfg.Key),
		Range:  aws.String(rangeHeader),
	}
	if r.cfg.RequesterPays {
		in.RequestPayer = types.RequestPayerRequester
	}
	if r.sseKey != "" {
		in.SSECustomerAlgorithm = aws.String(sseAlgorithm)
		in.SSECustomerKey = aws.String(r.sseKey)
		in.SSECustomerKeyMD5 = aws.String(r.sseKeyMD5)
	}
	if r.cfg.VersionID != "" {
		in.VersionId = aws.String(r.cfg.VersionID)
	}
	if !r.cfg.IfUnmodifiedSince.IsZero() {
		in.IfUnmodifiedSince = aws.Time(r.cfg.IfUnmodifiedSince)
	}

	out, err := r.client.GetObject(ctx, in)
	if err != nil {
		return nil, classify(ctx, "range read", offset, length, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, length))
	if err != nil {
		return nil, classify(ctx, "reading range body", offset, length, err)
	}
	if int64(len(data)) != length {
		return nil, &colfetch.Error{
			Kind:   colfetch.KindRetryable,
			Op:     "s3: range read",
			Offset: offset,
			Length: length,
			Err:    fmt.Errorf("short body: got %d of %d bytes", len(data), length),
		}
	}
	return data, nil
}

// Size returns the object's size from a HeadObject request.
func (r *Reader) Size(ctx context.Context) (int64, error) {
	in := &s3.HeadObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(r.cfg.Key),
	}
	if r.cfg.RequesterPays {
		in.RequestPayer = types.RequestPayerRequester
	}
	if r.sseKey != "" {
		in.SSECustomerAlgorithm = aws.String(sseAlgorithm)
		in.SSECustomerKey = aws.String(r.sseKey)
		in.SSECustomerKeyMD5 = aws.String(r.sseKeyMD5)
	}
	if r.cfg.VersionID != "" {
		in.VersionId = aws.String(r.cfg.VersionID)
	}
	if !r.cfg.IfUnmodifiedSince.IsZero() {
		in.IfUnmodifiedSince = aws.Time(r.cfg.IfUnmodifiedSince)
	}

	out, err := r.client.HeadObject(ctx, in)
	if err != nil {
		return 0, classify(ctx, "head", 0, 0, err)
	}
	if out.ContentLength == nil {
		return 0, &colfetch.Error{Kind: colfetch.KindOther, Op: "s3: head", Err: errors.New("response has no content length")}
	}
	return aws.ToInt64(out.ContentLength), nil
}

var (
	_ colfetch.RangeReader = (*Reader)(nil)
	_ colfetch.SizeLookup  = (*Reader)(nil)
)

// -----------------------------------------------------------------------------
// Error classification
// -----------------------------------------------------------------------------

// httpStatusError is satisfied by the SDK's HTTP response errors.
type httpStatusError interface {
	HTTPStatusCode() int
}

// classify maps an SDK error to a colfetch error kind.
func classify(ctx context.Context, op string, offset, length int64, err error) *colfetch.Error {
	e := &colfetch.Error{
		Kind:   colfetch.KindOther,
		Op:     "s3: " + op,
		Offset: offset,
		Length: length,
		Err:    err,
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		e.Status = statusErr.HTTPStatusCode()
	}

	switch {
	case ctx.Err() != nil:
		e.Kind = colfetch.KindCanceled
	case isNotFound(err) || e.Status == http.StatusNotFound:
		e.Kind = colfetch.KindNotFound
	case hasCode(err, "PreconditionFailed") || e.Status == http.StatusPreconditionFailed:
		e.Kind = colfetch.KindVersionChanged
	case hasCode(err, "AccessDenied", "Forbidden", "AllAccessDisabled") || e.Status == http.StatusForbidden:
		e.Kind = colfetch.KindAccessDenied
	case isRetryable(err, e.Status):
		e.Kind = colfetch.KindRetryable
	}
	return e
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	return hasCode(err, "NotFound", "NoSuchKey", "NoSuchBucket", "NoSuchVersion", "404")
}

// hasCode reports whether err carries one of the given API error codes.
func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// isRetryable reports transient faults: server errors, throttling,
// timeouts, and truncated responses.
func isRetryable(err error, status int) bool {
	if status >= 500 || status == http.StatusTooManyRequests {
		return true
	}
	if hasCode(err, "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
		"RequestTimeoutException", "InternalError", "ServiceUnavailable") {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
