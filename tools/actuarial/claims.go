// Package actuarial implements the claims analytics tools: fraud scoring,
// litigation detection, risk factor analysis, loss triangle construction,
// IBNR reserving, and development monitoring. Claims are loaded from the
// gzipped JSON lines a prior run_query unloaded to S3, keyed by session ID.
package actuarial

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

// Claim is one claims record. Upstream queries produce heterogeneous column
// sets, so records stay as maps and the accessors below tolerate the naming
// variants the source systems use.
type Claim map[string]any

// String returns the first non-empty string value among keys.
func (c Claim) String(keys ...string) string {
	for _, key := range keys {
		v, ok := c[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// Number returns the first parseable numeric value among keys, or 0.
func (c Claim) Number(keys ...string) float64 {
	for _, key := range keys {
		v, ok := c[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case int64:
			return float64(t)
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// Int returns the first parseable integer value among keys, or 0.
func (c Claim) Int(keys ...string) int {
	return int(c.Number(keys...))
}

// dateLayouts covers the formats observed in the claims extracts.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Date returns the first parseable date value among keys.
func (c Claim) Date(keys ...string) (time.Time, bool) {
	for _, key := range keys {
		v, ok := c[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Has reports whether any of the keys is present on the record.
func (c Claim) Has(keys ...string) bool {
	for _, key := range keys {
		if v, ok := c[key]; ok && v != nil {
			return true
		}
	}
	return false
}

// Field name variants for the dates the triangle builder needs.
var (
	reportDateKeys  = []string{"note_date", "lossdate", "loss_date", "date_of_loss", "accident_dt", "accident_date"}
	policyDateKeys  = []string{"policyeffectivedate"}
	claimNumberKeys = []string{"claimnumber", "claim_number", "claim_id"}
	paidAmountKeys  = []string{"paidtotal", "paid_total", "amount_paid"}
	incurredKeys    = []string{"totalincurred", "total_incurred", "incurred_total"}
	reserveKeys     = []string{"reservetotal", "reserve_total", "reserves"}
	narrativeKeys   = []string{"note_text", "lossdescription", "injurydescription"}
)

type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Service backs the actuarial tools. It loads claims for a session from S3
// and hands them to the pure analysis functions in this package.
type Service struct {
	s3       s3API
	sessions session.Store

	clock gateway.Clock
	rng   *rand.Rand
}

type Option func(*Service)

func WithClock(clock gateway.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRand fixes the randomness used by the reserve bootstrap. Tests pass a
// seeded source for reproducible intervals.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

func NewService(client s3API, sessions session.Store, opts ...Option) *Service {
	s := &Service{
		s3:       client,
		sessions: sessions,
		clock:    gateway.RealClock{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadClaims streams the session's unloaded result files back from S3 and
// decodes them into claim records.
func (s *Service) LoadClaims(ctx context.Context, sessionID string) ([]Claim, error) {
	if sessionID == "" {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "session_id is required")
	}

	result, err := s.sessions.GetQueryResult(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, gateway.NewToolError(gateway.CodeResourceNotFound,
				fmt.Sprintf("no data found for session_id %s; run a query first", sessionID))
		}
		return nil, gateway.NewToolError(gateway.CodeInternalError, "failed to load session metadata")
	}

	bucket, prefix, err := splitS3URL(result.S3Prefix)
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeInternalError, "session has an invalid result location")
	}

	listed, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeInternalError, "failed to list session data files")
	}

	var claims []Claim
	for _, obj := range listed.Contents {
		if aws.ToInt64(obj.Size) == 0 {
			continue
		}
		fileClaims, err := s.readClaimsFile(ctx, bucket, aws.ToString(obj.Key))
		if err != nil {
			return nil, err
		}
		claims = append(claims, fileClaims...)
	}
	if len(claims) == 0 {
		return nil, gateway.NewToolError(gateway.CodeResourceNotFound,
			fmt.Sprintf("no data found for session_id %s", sessionID))
	}
	return claims, nil
}

func (s *Service) readClaimsFile(ctx context.Context, bucket, key string) ([]Claim, error) {
	obj, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeInternalError, "failed to read session data file")
	}
	defer obj.Body.Close()

	gz, err := gzip.NewReader(obj.Body)
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeInternalError, "session data file is not gzip encoded")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var claims []Claim
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var claim Claim
		if err := json.Unmarshal(line, &claim); err != nil {
			return nil, gateway.NewToolError(gateway.CodeInternalError, "session data file is not valid JSON lines")
		}
		claims = append(claims, claim)
	}
	if err := scanner.Err(); err != nil {
		return nil, gateway.NewToolError(gateway.CodeInternalError, "failed to scan session data file")
	}
	return claims, nil
}

func splitS3URL(url string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", url)
	}
	bucket, key, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in s3 url: %s", url)
	}
	return bucket, key, nil
}
