// Package seclog records security-relevant events from the gateway tool
// Lambdas: authentication outcomes, rate limiting, and suspicious requests.
// Events always reach the structured logger; additional sinks (CloudWatch
// Logs) are best-effort and never fail the request.
package seclog

import (
	"context"
	"time"

	"github.com/quicksuite-labs/agentgateway/pkg/observability"
	"github.com/quicksuite-labs/agentgateway/pkg/sanitization"
)

// EventType identifies the category of a security event.
type EventType string

const (
	EventAuthSuccess            EventType = "AUTH_SUCCESS"
	EventAuthFailure            EventType = "AUTH_FAILURE"
	EventTokenValidationFailure EventType = "TOKEN_VALIDATION_FAILURE"
	EventRateLimitExceeded      EventType = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousRequest      EventType = "SUSPICIOUS_REQUEST"
	EventAccessDenied           EventType = "ACCESS_DENIED"
)

// Event is one security event. ClientID is masked before it is written.
type Event struct {
	Type      EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	ToolName  string         `json:"tool_name,omitempty"`
	SourceIP  string         `json:"source_ip,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink receives security events for durable storage.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Recorder fans security events out to the logger and any configured sinks.
type Recorder struct {
	logger observability.StructuredLogger
	sinks  []Sink
	clock  func() time.Time
}

type RecorderOption func(*Recorder)

func WithSink(sink Sink) RecorderOption {
	return func(r *Recorder) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.clock = now
		}
	}
}

func NewRecorder(logger observability.StructuredLogger, options ...RecorderOption) *Recorder {
	if logger == nil {
		logger = observability.NewNoOpLogger()
	}
	r := &Recorder{
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Record writes the event. Sink failures are logged and swallowed so a
// broken log pipeline cannot take down the tool.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock().UTC()
	}
	if event.ClientID != "" {
		event.ClientID = sanitization.MaskTrailing(event.ClientID, 4)
	}
	event.Reason = sanitization.ScrubMessage(event.Reason)

	fields := map[string]any{
		"security_event": string(event.Type),
		"source_ip":      event.SourceIP,
		"reason":         event.Reason,
	}
	for k, v := range event.Details {
		fields[k] = v
	}

	logger := r.logger.
		WithRequestID(event.RequestID).
		WithToolName(event.ToolName).
		WithClientID(event.ClientID)
	if event.Type == EventAuthSuccess {
		logger.Info("security event", fields)
	} else {
		logger.Warn("security event", fields)
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, event); err != nil {
			r.logger.Warn("security sink write failed", map[string]any{
				"error":          err.Error(),
				"security_event": string(event.Type),
			})
		}
	}
}
