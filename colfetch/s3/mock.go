package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API.
type MockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Call counters for test assertions
	GetObjectCalls  int
	HeadObjectCalls int

	// Captured inputs, in call order
	GetInputs  []*s3.GetObjectInput
	HeadInputs []*s3.HeadObjectInput

	// GetObjectErr, when set, is consulted before every GetObject.
	// A non-nil return fails that call. call is 1-based.
	GetObjectErr func(call int, in *s3.GetObjectInput) error

	// TruncateBody shortens every GetObject body by this many bytes.
	TruncateBody int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{objects: make(map[string][]byte)}
}

// PutObject stores data under key.
func (m *MockS3Client) PutObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// ResetCounts resets call counters and captured inputs for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls = 0
	m.HeadObjectCalls = 0
	m.GetInputs = nil
	m.HeadInputs = nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	call := m.GetObjectCalls
	m.GetInputs = append(m.GetInputs, params)
	data, exists := m.objects[key]
	inject := m.GetObjectErr
	truncate := m.TruncateBody
	m.mu.Unlock()

	if inject != nil {
		if err := inject(call, params); err != nil {
			return nil, err
		}
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}

	// Handle range requests
	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		_, _ = fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}

		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		data = data[start : end+1]
	}
	if truncate > 0 {
		data = data[:max(0, len(data)-truncate)]
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	m.HeadInputs = append(m.HeadInputs, params)
	data, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

var _ API = (*MockS3Client)(nil)

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
