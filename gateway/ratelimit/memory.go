package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a sliding-window limiter scoped to one Lambda execution
// environment. State does not survive cold starts and is not shared across
// concurrent executions; use the DynamoDB limiter when that matters.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	history   map[string][]time.Time
	lastSweep time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

type MemoryOption func(*MemoryLimiter)

func WithNow(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func NewMemoryLimiter(cfg Config, options ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg.normalized(),
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, identifier string) (Decision, error) {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now, cutoff)

	kept := l.history[identifier][:0]
	for _, t := range l.history[identifier] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	decision := Decision{
		Limit: l.cfg.MaxRequests,
		Count: len(kept),
	}
	if len(kept) >= l.cfg.MaxRequests {
		oldest := kept[0]
		decision.ResetsAt = oldest.Add(l.cfg.Window)
		decision.RetryAfter = decision.ResetsAt.Sub(now)
		l.history[identifier] = kept
		return decision, nil
	}

	kept = append(kept, now)
	l.history[identifier] = kept
	decision.Allowed = true
	decision.Count = len(kept)
	decision.ResetsAt = kept[0].Add(l.cfg.Window)
	return decision, nil
}

// sweepLocked drops identifiers whose whole history has aged out, so one-off
// callers do not accumulate across the life of a warm container. Runs at
// most once per window.
func (l *MemoryLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	l.lastSweep = now

	for id, times := range l.history {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.history, id)
		}
	}
}
