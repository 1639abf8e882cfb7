// Package ratelimit throttles tool invocations per caller identity. Two
// implementations are provided: an in-memory sliding window for single
// Lambda environments, and a DynamoDB fixed window shared across concurrent
// executions.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	ResetsAt   time.Time
	RetryAfter time.Duration
}

// Limiter checks and records one request for the given identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (Decision, error)
}

// Config holds the shared limiter settings. The defaults allow 100 requests
// per rolling 60 seconds per identifier.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

func (c Config) normalized() Config {
	out := c
	if out.MaxRequests <= 0 {
		out.MaxRequests = 100
	}
	if out.Window <= 0 {
		out.Window = time.Minute
	}
	return out
}
