package s3crud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

type fakeObject struct {
	body         []byte
	metadata     map[string]string
	contentType  string
	lastModified time.Time
	etag         string
}

type fakeS3 struct {
	objects map[string]fakeObject

	// getErrs is consumed one error per GetObject call before the normal
	// lookup runs; nil entries mean "no injected failure".
	getErrs []error
	putErr  error
	headErr error
	delErr  error

	// keepOnDelete simulates a delete that silently does nothing.
	keepOnDelete bool

	puts, gets, heads, deletes int
	etagSeq                    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) seed(key, content string) {
	f.seedBytes(key, []byte(content))
}

func (f *fakeS3) seedBytes(key string, body []byte) {
	f.etagSeq++
	f.objects[key] = fakeObject{
		body:         body,
		contentType:  "application/octet-stream",
		lastModified: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		etag:         fmt.Sprintf("etag-%d", f.etagSeq),
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.etagSeq++
	etag := fmt.Sprintf("etag-%d", f.etagSeq)
	f.objects[aws.ToString(in.Key)] = fakeObject{
		body:         body,
		metadata:     in.Metadata,
		lastModified: time.Now().UTC(),
		etag:         etag,
	}
	return &s3.PutObjectOutput{ETag: aws.String(`"` + etag + `"`)}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(string(obj.body))),
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"` + obj.etag + `"`),
		LastModified:  aws.Time(obj.lastModified),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.heads++
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		ETag:          aws.String(`"` + obj.etag + `"`),
		LastModified:  aws.Time(obj.lastModified),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes++
	if f.delErr != nil {
		return nil, f.delErr
	}
	if !f.keepOnDelete {
		delete(f.objects, aws.ToString(in.Key))
	}
	return &s3.DeleteObjectOutput{}, nil
}

func fastPolicy() gateway.RetryPolicy {
	return gateway.RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 4 * time.Millisecond}
}

func newTestService(f *fakeS3, opts ...Option) *Service {
	opts = append([]Option{WithRetryPolicy(fastPolicy())}, opts...)
	return NewService(f, "quick-suite-docs", opts...)
}

func toolError(t *testing.T, err error) *gateway.ToolError {
	t.Helper()
	require.Error(t, err)
	toolErr := gateway.AsToolError(err)
	require.NotNil(t, toolErr)
	return toolErr
}

func TestCreateStoresObject(t *testing.T) {
	f := newFakeS3()
	svc := newTestService(f)

	result, err := svc.Create(context.Background(), "reports/q1.txt", "hello", map[string]any{
		"author":  "analyst",
		"version": float64(2),
		"draft":   true,
		"ignored": []any{"x"},
	})
	require.NoError(t, err)

	assert.Equal(t, "create", result.Operation)
	assert.Equal(t, "quick-suite-docs", result.Bucket)
	assert.Equal(t, "etag-1", result.ETag)
	assert.Equal(t, int64(5), result.Size)

	stored := f.objects["reports/q1.txt"]
	assert.Equal(t, "hello", string(stored.body))
	assert.Equal(t, map[string]string{"author": "analyst", "version": "2", "draft": "true"}, stored.metadata)
}

func TestCreateRejectsBadKeys(t *testing.T) {
	svc := newTestService(newFakeS3())

	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "too long", key: strings.Repeat("a", 1025)},
		{name: "newline", key: "reports/q1\n.txt"},
		{name: "carriage return", key: "reports/q1\r.txt"},
		{name: "null byte", key: "reports/q1\x00.txt"},
		{name: "leading slash", key: "/reports/q1.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.key, "body", nil)
			toolErr := toolError(t, err)
			assert.Equal(t, CodeInvalidKey, toolErr.Code)
			assert.Equal(t, 400, toolErr.Status)
		})
	}
}

func TestCreateRejectsOversizeContent(t *testing.T) {
	svc := newTestService(newFakeS3(), WithLimits(16, 1024))

	_, err := svc.Create(context.Background(), "k", strings.Repeat("a", 17), nil)
	toolErr := toolError(t, err)
	assert.Equal(t, CodeInvalidContent, toolErr.Code)
	assert.Equal(t, 400, toolErr.Status)
	assert.Equal(t, int64(16), toolErr.Details["max_size"])
}

func TestReadTextObject(t *testing.T) {
	f := newFakeS3()
	f.seed("notes.md", "# Notes")
	svc := newTestService(f)

	result, err := svc.Read(context.Background(), "notes.md")
	require.NoError(t, err)

	assert.Equal(t, "read", result.Operation)
	assert.Equal(t, "text", result.ContentType)
	assert.Equal(t, "# Notes", result.Content)
	assert.Equal(t, "notes.md", result.Metadata.Key)
	assert.Equal(t, int64(7), result.Metadata.Size)
	assert.Equal(t, "etag-1", result.Metadata.ETag)
	assert.Equal(t, "2026-03-14T09:30:00Z", result.Metadata.LastModified)
}

func TestReadBinaryObject(t *testing.T) {
	f := newFakeS3()
	raw := []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}
	f.seedBytes("logo.png", raw)
	svc := newTestService(f)

	result, err := svc.Read(context.Background(), "logo.png")
	require.NoError(t, err)

	assert.Equal(t, "binary", result.ContentType)
	decoded, err := base64.StdEncoding.DecodeString(result.Content)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestReadMissingObject(t *testing.T) {
	svc := newTestService(newFakeS3())

	_, err := svc.Read(context.Background(), "missing.txt")
	toolErr := toolError(t, err)
	assert.Equal(t, gateway.CodeObjectNotFound, toolErr.Code)
	assert.Equal(t, 404, toolErr.Status)
}

func TestUpdateRequiresExistingObject(t *testing.T) {
	f := newFakeS3()
	svc := newTestService(f)

	_, err := svc.Update(context.Background(), "missing.txt", "body", nil)
	toolErr := toolError(t, err)
	assert.Equal(t, gateway.CodeObjectNotFound, toolErr.Code)
	assert.Zero(t, f.puts)
}

func TestUpdateOverwritesObject(t *testing.T) {
	f := newFakeS3()
	f.seed("notes.md", "old")
	svc := newTestService(f)

	result, err := svc.Update(context.Background(), "notes.md", "new content", nil)
	require.NoError(t, err)

	assert.Equal(t, "update", result.Operation)
	assert.Equal(t, int64(11), result.Size)
	assert.Equal(t, "new content", string(f.objects["notes.md"].body))
}

func TestDeleteRemovesObject(t *testing.T) {
	f := newFakeS3()
	f.seed("stale.txt", "x")
	svc := newTestService(f)

	result, err := svc.Delete(context.Background(), "stale.txt")
	require.NoError(t, err)

	assert.True(t, result.Deleted)
	assert.NotContains(t, f.objects, "stale.txt")
	// Head before, delete, head verify.
	assert.Equal(t, 2, f.heads)
	assert.Equal(t, 1, f.deletes)
}

func TestDeleteMissingObject(t *testing.T) {
	f := newFakeS3()
	svc := newTestService(f)

	_, err := svc.Delete(context.Background(), "missing.txt")
	toolErr := toolError(t, err)
	assert.Equal(t, gateway.CodeObjectNotFound, toolErr.Code)
	assert.Zero(t, f.deletes)
}

func TestDeleteVerificationFailure(t *testing.T) {
	f := newFakeS3()
	f.seed("sticky.txt", "x")
	f.keepOnDelete = true
	svc := newTestService(f)

	_, err := svc.Delete(context.Background(), "sticky.txt")
	toolErr := toolError(t, err)
	assert.Equal(t, CodeDeleteFailed, toolErr.Code)
	assert.Equal(t, 500, toolErr.Status)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		s3Code     string
		wantCode   string
		wantStatus int
	}{
		{s3Code: "NoSuchKey", wantCode: gateway.CodeObjectNotFound, wantStatus: 404},
		{s3Code: "NoSuchBucket", wantCode: CodeBucketNotFound, wantStatus: 404},
		{s3Code: "AccessDenied", wantCode: gateway.CodeAccessDenied, wantStatus: 403},
		{s3Code: "InvalidBucketName", wantCode: CodeInvalidBucket, wantStatus: 400},
		{s3Code: "BucketNotEmpty", wantCode: CodeBucketNotEmpty, wantStatus: 409},
		{s3Code: "InvalidRequest", wantCode: gateway.CodeInvalidRequest, wantStatus: 400},
		{s3Code: "RequestTimeout", wantCode: CodeRequestTimeout, wantStatus: 408},
		{s3Code: "ServiceUnavailable", wantCode: gateway.CodeServiceUnavailable, wantStatus: 503},
		{s3Code: "SlowDown", wantCode: gateway.CodeRateLimited, wantStatus: 503},
		{s3Code: "InternalError", wantCode: CodeS3Internal, wantStatus: 500},
		{s3Code: "SomethingNovel", wantCode: CodeS3Error, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.s3Code, func(t *testing.T) {
			f := newFakeS3()
			apiErr := &smithy.GenericAPIError{Code: tt.s3Code, Message: "injected"}
			// Every retry attempt sees the same failure.
			f.getErrs = []error{apiErr, apiErr, apiErr}
			svc := newTestService(f)

			_, err := svc.Read(context.Background(), "any.txt")
			toolErr := toolError(t, err)
			assert.Equal(t, tt.wantCode, toolErr.Code)
			assert.Equal(t, tt.wantStatus, toolErr.Status)
		})
	}
}

func TestReadRetriesTransientFailures(t *testing.T) {
	f := newFakeS3()
	f.seed("flaky.txt", "eventually")
	f.getErrs = []error{
		&smithy.GenericAPIError{Code: "ServiceUnavailable"},
		&smithy.GenericAPIError{Code: "SlowDown"},
		nil,
	}
	svc := newTestService(f)

	result, err := svc.Read(context.Background(), "flaky.txt")
	require.NoError(t, err)
	assert.Equal(t, "eventually", result.Content)
	assert.Equal(t, 3, f.gets)
}

func TestReadDoesNotRetryAccessDenied(t *testing.T) {
	f := newFakeS3()
	f.getErrs = []error{&smithy.GenericAPIError{Code: "AccessDenied"}}
	svc := newTestService(f)

	_, err := svc.Read(context.Background(), "secret.txt")
	toolErr := toolError(t, err)
	assert.Equal(t, gateway.CodeAccessDenied, toolErr.Code)
	assert.Equal(t, 1, f.gets)
}

func TestKeyValidationProperties(t *testing.T) {
	svc := newTestService(newFakeS3())

	rapid.Check(t, func(t *rapid.T) {
		key := rapid.String().Draw(t, "key")
		err := svc.validateKey(key)
		if err == nil {
			if key == "" || len(key) > DefaultMaxKeyLength ||
				strings.ContainsAny(key, "\x00\r\n") || strings.HasPrefix(key, "/") {
				t.Fatalf("invalid key accepted: %q", key)
			}
		}
	})
}

func TestRegisterExposesTools(t *testing.T) {
	f := newFakeS3()
	registry := gateway.NewToolRegistry()
	Register(registry, newTestService(f))

	names := make([]string, 0, 4)
	for _, def := range registry.List() {
		names = append(names, def.Name)
		assert.True(t, json.Valid(def.InputSchema), def.Name)
	}
	assert.Equal(t, []string{ToolCreateObject, ToolReadObject, ToolUpdateObject, ToolDeleteObject}, names)

	_, err := registry.Call(context.Background(), ToolCreateObject,
		json.RawMessage(`{"key":"a.txt","content":"hi"}`))
	require.NoError(t, err)

	data, err := registry.Call(context.Background(), ToolReadObject,
		json.RawMessage(`{"key":"a.txt"}`))
	require.NoError(t, err)
	read, ok := data.(*ReadResult)
	require.True(t, ok)
	assert.Equal(t, "hi", read.Content)
}

func TestRegisterRejectsMalformedArguments(t *testing.T) {
	registry := gateway.NewToolRegistry()
	Register(registry, newTestService(newFakeS3()))

	_, err := registry.Call(context.Background(), ToolReadObject, json.RawMessage(`"not-an-object"`))
	toolErr := toolError(t, err)
	assert.Equal(t, gateway.CodeValidationError, toolErr.Code)
}
