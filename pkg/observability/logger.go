// Package observability defines the structured logging surface shared by the
// gateway tool Lambdas. Implementations live in subpackages; handlers depend
// only on StructuredLogger so tests can swap in the in-memory TestLogger.
package observability

import (
	"context"
	"time"
)

// SanitizerFunc rewrites a field value before it is emitted.
type SanitizerFunc func(key string, value any) any

// ErrorNotifier receives error-level entries for out-of-band alerting.
type ErrorNotifier interface {
	Notify(ctx context.Context, entry LogEntry) error
}

// LogEntry is a structured log record.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// StructuredLogger is the logging surface used throughout the tool handlers.
//
// With* methods return derived loggers; the receiver is never mutated, so a
// handler can bind request context once and pass the result down the stack.
type StructuredLogger interface {
	Debug(message string, fields ...map[string]any)
	Info(message string, fields ...map[string]any)
	Warn(message string, fields ...map[string]any)
	Error(message string, fields ...map[string]any)

	WithField(key string, value any) StructuredLogger
	WithFields(fields map[string]any) StructuredLogger

	WithRequestID(requestID string) StructuredLogger
	WithToolName(toolName string) StructuredLogger
	WithClientID(clientID string) StructuredLogger
	WithSessionID(sessionID string) StructuredLogger

	Flush(ctx context.Context) error
	Close() error
	IsHealthy() bool
	Stats() LoggerStats
}

// LoggerStats reports counters for health checks and tests.
type LoggerStats struct {
	LastFlush      time.Time `json:"last_flush"`
	LastError      string    `json:"last_error,omitempty"`
	EntriesLogged  int64     `json:"entries_logged"`
	EntriesDropped int64     `json:"entries_dropped"`
	FlushCount     int64     `json:"flush_count"`
	ErrorCount     int64     `json:"error_count"`
}

// LoggerConfig configures logger implementations.
type LoggerConfig struct {
	Format       string        `json:"format"`
	Level        string        `json:"level"`
	RetryDelay   time.Duration `json:"retry_delay"`
	BufferSize   int           `json:"buffer_size"`
	MaxRetries   int           `json:"max_retries"`
	EnableStack  bool          `json:"enable_stack"`
	EnableCaller bool          `json:"enable_caller"`
}
