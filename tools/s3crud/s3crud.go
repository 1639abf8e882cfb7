// Package s3crud implements the document store tools: create, read, update,
// and delete of objects in a single S3 bucket, with validation and retry
// behavior matching the gateway contract.
package s3crud

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Error codes specific to the S3 tools. Codes shared with the rest of the
// gateway (OBJECT_NOT_FOUND, ACCESS_DENIED, ...) come from the gateway package.
const (
	CodeInvalidKey     = "INVALID_KEY"
	CodeInvalidContent = "INVALID_CONTENT"
	CodeBucketNotFound = "BUCKET_NOT_FOUND"
	CodeInvalidBucket  = "INVALID_BUCKET"
	CodeBucketNotEmpty = "BUCKET_NOT_EMPTY"
	CodeRequestTimeout = "REQUEST_TIMEOUT"
	CodeS3Internal     = "S3_INTERNAL_ERROR"
	CodeS3Error        = "S3_ERROR"
	CodeDeleteFailed   = "DELETE_FAILED"
)

// Default limits. Both can be overridden per deployment.
const (
	DefaultMaxObjectSize = 5 * 1024 * 1024
	DefaultMaxKeyLength  = 1024
)

// s3API is the slice of the S3 client the service uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ObjectMetadata describes a stored object in read responses.
type ObjectMetadata struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	LastModified string            `json:"lastModified"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"contentType"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// WriteResult is returned by create and update.
type WriteResult struct {
	Operation string `json:"operation"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
}

// ReadResult is returned by read. ContentType is "text" for valid UTF-8
// content and "binary" for content returned base64 encoded.
type ReadResult struct {
	Operation   string         `json:"operation"`
	Bucket      string         `json:"bucket"`
	Content     string         `json:"content"`
	ContentType string         `json:"contentType"`
	Metadata    ObjectMetadata `json:"metadata"`
}

// DeleteResult is returned by delete.
type DeleteResult struct {
	Operation string `json:"operation"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Deleted   bool   `json:"deleted"`
}

// Service performs CRUD operations against one bucket.
type Service struct {
	client s3API
	bucket string

	maxObjectSize int64
	maxKeyLength  int
	retry         gateway.RetryPolicy
}

type Option func(*Service)

// WithRetryPolicy overrides the default backoff for S3 calls.
func WithRetryPolicy(policy gateway.RetryPolicy) Option {
	return func(s *Service) { s.retry = policy }
}

// WithLimits overrides the object size and key length ceilings.
func WithLimits(maxObjectSize int64, maxKeyLength int) Option {
	return func(s *Service) {
		if maxObjectSize > 0 {
			s.maxObjectSize = maxObjectSize
		}
		if maxKeyLength > 0 {
			s.maxKeyLength = maxKeyLength
		}
	}
}

// NewService builds the document store service for one bucket.
func NewService(client s3API, bucket string, opts ...Option) *Service {
	s := &Service{
		client:        client,
		bucket:        bucket,
		maxObjectSize: DefaultMaxObjectSize,
		maxKeyLength:  DefaultMaxKeyLength,
		retry:         gateway.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes a new object. Existing objects are overwritten; callers that
// need existence checks use Update.
func (s *Service) Create(ctx context.Context, key, content string, metadata map[string]any) (*WriteResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	out, err := s.put(ctx, key, content, metadata)
	if err != nil {
		return nil, s.mapError(err, "create", key)
	}
	return &WriteResult{
		Operation: "create",
		Bucket:    s.bucket,
		Key:       key,
		ETag:      strings.Trim(aws.ToString(out.ETag), `"`),
		Size:      int64(len(content)),
	}, nil
}

// Read fetches an object. Valid UTF-8 bodies are returned as text; anything
// else is base64 encoded and flagged as binary.
func (s *Service) Read(ctx context.Context, key string) (*ReadResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	out, err := gateway.Retry(ctx, s.retry, retryableS3, func(ctx context.Context) (*s3.GetObjectOutput, error) {
		return s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return nil, s.mapError(err, "read", key)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.mapError(err, "read", key)
	}

	content := string(body)
	contentType := "text"
	if !utf8.Valid(body) {
		content = base64.StdEncoding.EncodeToString(body)
		contentType = "binary"
	}

	meta := ObjectMetadata{
		Key:         key,
		Size:        int64(len(body)),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		meta.LastModified = out.LastModified.UTC().Format(time.RFC3339)
	}

	return &ReadResult{
		Operation:   "read",
		Bucket:      s.bucket,
		Content:     content,
		ContentType: contentType,
		Metadata:    meta,
	}, nil
}

// Update overwrites an existing object. Updating a missing object is an
// error so agents cannot silently create objects through the update tool.
func (s *Service) Update(ctx context.Context, key, content string, metadata map[string]any) (*WriteResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if err := s.validateContent(content); err != nil {
		return nil, err
	}

	if _, err := s.head(ctx, key); err != nil {
		if isNotFound(err) {
			return nil, objectNotFound("cannot update non-existent object: "+key, s.bucket, key)
		}
		return nil, s.mapError(err, "update", key)
	}

	out, err := s.put(ctx, key, content, metadata)
	if err != nil {
		return nil, s.mapError(err, "update", key)
	}
	return &WriteResult{
		Operation: "update",
		Bucket:    s.bucket,
		Key:       key,
		ETag:      strings.Trim(aws.ToString(out.ETag), `"`),
		Size:      int64(len(content)),
	}, nil
}

// Delete removes an existing object and verifies the removal took effect.
func (s *Service) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	if _, err := s.head(ctx, key); err != nil {
		if isNotFound(err) {
			return nil, objectNotFound("cannot delete non-existent object: "+key, s.bucket, key)
		}
		return nil, s.mapError(err, "delete", key)
	}

	_, err := gateway.Retry(ctx, s.retry, retryableS3, func(ctx context.Context) (*s3.DeleteObjectOutput, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return nil, s.mapError(err, "delete", key)
	}

	// Verify the object is actually gone before reporting success.
	if _, err := s.head(ctx, key); err == nil {
		return nil, &gateway.ToolError{
			Code:    CodeDeleteFailed,
			Message: "object deletion was not successful",
			Status:  500,
		}
	} else if !isNotFound(err) {
		return nil, s.mapError(err, "delete", key)
	}

	return &DeleteResult{
		Operation: "delete",
		Bucket:    s.bucket,
		Key:       key,
		Deleted:   true,
	}, nil
}

func (s *Service) put(ctx context.Context, key, content string, metadata map[string]any) (*s3.PutObjectOutput, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(content),
	}
	if sanitized := sanitizeMetadata(metadata); len(sanitized) > 0 {
		in.Metadata = sanitized
	}
	return gateway.Retry(ctx, s.retry, retryableS3, func(ctx context.Context) (*s3.PutObjectOutput, error) {
		// The reader is consumed on each attempt.
		in.Body = strings.NewReader(content)
		return s.client.PutObject(ctx, in)
	})
}

func (s *Service) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return gateway.Retry(ctx, s.retry, retryableS3, func(ctx context.Context) (*s3.HeadObjectOutput, error) {
		return s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
}

// validateKey rejects keys that are empty, too long, carry control
// characters, or start with a slash.
func (s *Service) validateKey(key string) error {
	if key == "" {
		return invalidKey("object key must not be empty", s.maxKeyLength)
	}
	if len(key) > s.maxKeyLength {
		return invalidKey("object key exceeds maximum length", s.maxKeyLength).WithDetail("key_length", len(key))
	}
	if strings.ContainsAny(key, "\x00\r\n") {
		return invalidKey("object key contains invalid characters", s.maxKeyLength)
	}
	if strings.HasPrefix(key, "/") {
		return invalidKey("object key must not start with a slash", s.maxKeyLength)
	}
	return nil
}

func (s *Service) validateContent(content string) error {
	if int64(len(content)) > s.maxObjectSize {
		return &gateway.ToolError{
			Code:    CodeInvalidContent,
			Message: "content exceeds maximum object size",
			Status:  400,
			Details: map[string]any{"max_size": s.maxObjectSize},
		}
	}
	return nil
}

func invalidKey(message string, maxLength int) *gateway.ToolError {
	return &gateway.ToolError{
		Code:    CodeInvalidKey,
		Message: message,
		Status:  400,
		Details: map[string]any{"max_length": maxLength},
	}
}

func objectNotFound(message, bucket, key string) *gateway.ToolError {
	return &gateway.ToolError{
		Code:    gateway.CodeObjectNotFound,
		Message: message,
		Status:  404,
		Details: map[string]any{"bucket": bucket, "key": key},
	}
}

// sanitizeMetadata keeps string-typed keys with scalar values, stringified.
// Anything else is dropped rather than rejected.
func sanitizeMetadata(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		}
	}
	return out
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound covers both GetObject's NoSuchKey and HeadObject's bare 404.
func isNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound", "404":
		return true
	}
	return false
}

// retryableS3 excludes errors a retry cannot fix. Context cancellation is
// never retried.
func retryableS3(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch apiErrorCode(err) {
	case "NoSuchBucket", "AccessDenied", "InvalidBucketName", "NoSuchKey", "NotFound", "404", "InvalidRequest":
		return false
	}
	return true
}

// mapError converts an S3 failure into a stable tool error.
func (s *Service) mapError(err error, operation, key string) error {
	var toolErr *gateway.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound", "404":
		return objectNotFound("object not found: "+key, s.bucket, key)
	case "NoSuchBucket":
		return &gateway.ToolError{Code: CodeBucketNotFound, Message: "bucket not found: " + s.bucket, Status: 404}
	case "AccessDenied":
		return &gateway.ToolError{Code: gateway.CodeAccessDenied, Message: "access denied to S3 resource", Status: 403}
	case "InvalidBucketName":
		return &gateway.ToolError{Code: CodeInvalidBucket, Message: "bucket name is invalid", Status: 400}
	case "BucketNotEmpty":
		return &gateway.ToolError{Code: CodeBucketNotEmpty, Message: "bucket is not empty", Status: 409}
	case "InvalidRequest":
		return &gateway.ToolError{Code: gateway.CodeInvalidRequest, Message: "invalid S3 request", Status: 400}
	case "RequestTimeout":
		return &gateway.ToolError{Code: CodeRequestTimeout, Message: "S3 request timed out", Status: 408}
	case "ServiceUnavailable":
		return &gateway.ToolError{Code: gateway.CodeServiceUnavailable, Message: "S3 is temporarily unavailable", Status: 503}
	case "SlowDown":
		return &gateway.ToolError{Code: gateway.CodeRateLimited, Message: "S3 request rate exceeded", Status: 503}
	case "InternalError":
		return &gateway.ToolError{Code: CodeS3Internal, Message: "S3 internal error", Status: 500}
	default:
		return &gateway.ToolError{
			Code:    CodeS3Error,
			Message: fmt.Sprintf("S3 %s operation failed", operation),
			Status:  500,
		}
	}
}
