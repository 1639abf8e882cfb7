package session

import (
	"context"
	"encoding/json"
	"os"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"
)

const (
	pkPrefix      = "SESSION#"
	skQueryResult = "QUERY_RESULT"
	skTriangles   = "TRIANGLES"

	// DefaultTTL keeps session state for a week so an analysis picked back
	// up days later still finds its unloaded results.
	DefaultTTL = 7 * 24 * time.Hour
)

// sessionRecord is the DynamoDB shape of one session entry. Query results
// and triangles live under one partition per session, distinguished by SK.
type sessionRecord struct {
	PK string `theorydb:"pk" json:"pk"`
	SK string `theorydb:"sk" json:"sk"`

	SessionID string    `json:"session_id"`
	S3Prefix  string    `json:"s3_prefix,omitempty"`
	Columns   []string  `json:"columns,omitempty"`
	RowCount  int64     `json:"row_count,omitempty"`
	Query     string    `json:"query,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// The CDK table defines its TTL attribute as "ttl".
	ExpiresAt int64 `theorydb:"ttl,attr:ttl" json:"expires_at"`
}

func (sessionRecord) TableName() string {
	if name := os.Getenv("SESSION_TABLE"); name != "" {
		return name
	}
	return "quick-suite-sessions"
}

// DynamoStore persists session state in a DynamoDB table via TableTheory,
// keyed by PK=SESSION#{id}, SK=record kind, with TTL-based expiry.
type DynamoStore struct {
	db  tablecore.DB
	ttl time.Duration

	now func() time.Time
}

var _ Store = (*DynamoStore)(nil)

type DynamoOption func(*DynamoStore)

// WithTTL overrides how long session records live.
func WithTTL(ttl time.Duration) DynamoOption {
	return func(s *DynamoStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewDynamoStore(db tablecore.DB, opts ...DynamoOption) *DynamoStore {
	s := &DynamoStore{
		db:  db,
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DynamoStore) SaveQueryResult(ctx context.Context, result QueryResult) error {
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	record := &sessionRecord{
		PK:        pkPrefix + result.SessionID,
		SK:        skQueryResult,
		SessionID: result.SessionID,
		S3Prefix:  result.S3Prefix,
		Columns:   result.Columns,
		RowCount:  result.RowCount,
		Query:     result.Query,
		CreatedAt: createdAt,
		ExpiresAt: s.expiresAt(),
	}
	return s.db.Model(record).WithContext(ctx).Create()
}

func (s *DynamoStore) GetQueryResult(ctx context.Context, sessionID string) (*QueryResult, error) {
	record, err := s.getRecord(ctx, sessionID, skQueryResult)
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		SessionID: record.SessionID,
		S3Prefix:  record.S3Prefix,
		Columns:   record.Columns,
		RowCount:  record.RowCount,
		Query:     record.Query,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (s *DynamoStore) SaveTriangles(ctx context.Context, sessionID string, triangles json.RawMessage) error {
	record := &sessionRecord{
		PK:        pkPrefix + sessionID,
		SK:        skTriangles,
		SessionID: sessionID,
		Payload:   string(triangles),
		CreatedAt: s.now().UTC(),
		ExpiresAt: s.expiresAt(),
	}
	return s.db.Model(record).WithContext(ctx).Create()
}

func (s *DynamoStore) GetTriangles(ctx context.Context, sessionID string) (json.RawMessage, error) {
	record, err := s.getRecord(ctx, sessionID, skTriangles)
	if err != nil {
		return nil, err
	}
	if record.Payload == "" {
		return nil, ErrNotFound
	}
	return json.RawMessage(record.Payload), nil
}

func (s *DynamoStore) getRecord(ctx context.Context, sessionID, sk string) (*sessionRecord, error) {
	var record sessionRecord
	err := s.db.Model(&sessionRecord{}).
		WithContext(ctx).
		Where("PK", "=", pkPrefix+sessionID).
		Where("SK", "=", sk).
		First(&record)
	if err != nil {
		if tableerrors.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(s.ttl).Unix()
}
