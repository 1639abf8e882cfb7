package gateway

import "time"

// Clock provides the current time. Handlers take a Clock so rate limiting,
// retries, and token validation are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time { return c.Time }
