package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
)

// windowEntry is one fixed-window counter item, keyed by identifier and
// window start. Entries expire via TTL two windows after the window opens.
type windowEntry struct {
	PK string `theorydb:"pk" json:"pk"`
	SK string `theorydb:"sk" json:"sk"`

	Identifier   string `json:"identifier"`
	WindowStart  int64  `json:"window_start"`
	RequestCount int    `json:"request_count"`

	// The CDK table defines its TTL attribute as "ttl".
	ExpiresAt int64 `theorydb:"ttl,attr:ttl" json:"expires_at"`
}

func (windowEntry) TableName() string {
	if name := os.Getenv("RATE_LIMIT_TABLE"); name != "" {
		return name
	}
	return "quick-suite-rate-limits"
}

// DynamoLimiter is a fixed-window counter shared across Lambda environments.
// Each identifier gets one item per window; the count is incremented
// atomically via TableTheory and items expire through the table TTL.
type DynamoLimiter struct {
	db  tablecore.DB
	cfg Config
	now func() time.Time
}

var _ Limiter = (*DynamoLimiter)(nil)

func NewDynamoLimiter(db tablecore.DB, cfg Config) (*DynamoLimiter, error) {
	if db == nil {
		return nil, errors.New("ratelimit: db must not be nil")
	}
	return &DynamoLimiter{
		db:  db,
		cfg: cfg.normalized(),
		now: time.Now,
	}, nil
}

func (l *DynamoLimiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.cfg.Window)
	resetsAt := windowStart.Add(l.cfg.Window)

	var updated windowEntry
	err := l.db.Model(&windowEntry{}).
		WithContext(ctx).
		Where("PK", "=", "RATE#"+identifier).
		Where("SK", "=", "WINDOW#"+windowStart.UTC().Format(time.RFC3339)).
		UpdateBuilder().
		Add("RequestCount", int64(1)).
		SetIfNotExists("Identifier", nil, identifier).
		SetIfNotExists("WindowStart", nil, windowStart.Unix()).
		SetIfNotExists("ExpiresAt", nil, resetsAt.Add(l.cfg.Window).Unix()).
		ExecuteWithResult(&updated)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: update window counter: %w", err)
	}

	decision := Decision{
		Count:    updated.RequestCount,
		Limit:    l.cfg.MaxRequests,
		ResetsAt: resetsAt,
	}
	if updated.RequestCount > l.cfg.MaxRequests {
		decision.RetryAfter = resetsAt.Sub(now)
		return decision, nil
	}
	decision.Allowed = true
	return decision, nil
}
