// Package zap implements observability.StructuredLogger on top of uber-go/zap
// with field sanitization and optional SNS error notifications.
package zap

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quicksuite-labs/agentgateway/pkg/observability"
	"github.com/quicksuite-labs/agentgateway/pkg/sanitization"
)

const (
	levelDebug = "debug"
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"
)

type Option func(*loggerOptions)

type loggerOptions struct {
	initErr error

	zapLogger *ubzap.Logger
	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier

	maxRetries int
	retryDelay time.Duration
	bufferSize int
}

// WithZapLogger replaces the default stdout core, mainly for tests.
func WithZapLogger(logger *ubzap.Logger) Option {
	return func(opts *loggerOptions) {
		opts.zapLogger = logger
	}
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(opts *loggerOptions) {
		opts.sanitizer = fn
	}
}

// WithErrorNotifier forwards error-level entries to the notifier on a
// buffered background channel. Entries are dropped, not blocked on, when the
// buffer is full.
func WithErrorNotifier(notifier observability.ErrorNotifier) Option {
	return func(opts *loggerOptions) {
		opts.notifier = notifier
	}
}

type zapCore struct {
	logger *ubzap.Logger

	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier

	retryDelay time.Duration
	maxRetries int

	notifyMu sync.Mutex
	notifyCh chan observability.LogEntry
	notifyWg sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	entriesLogged  atomic.Int64
	entriesDropped atomic.Int64
	flushCount     atomic.Int64
	errorCount     atomic.Int64
	lastFlushNanos atomic.Int64
	lastError      atomic.Value
}

// Logger is the zap-backed StructuredLogger. Derived loggers share one core.
type Logger struct {
	core *zapCore
	log  *ubzap.Logger

	fields map[string]any

	requestID string
	toolName  string
	clientID  string
	sessionID string
}

var _ observability.StructuredLogger = (*Logger)(nil)

func NewLogger(config observability.LoggerConfig, options ...Option) (observability.StructuredLogger, error) {
	cfg := normalizeConfig(config)

	opts := &loggerOptions{
		sanitizer:  sanitization.SanitizeFieldValue,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		bufferSize: cfg.BufferSize,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(opts)
	}
	if opts.initErr != nil {
		return nil, opts.initErr
	}

	base := opts.zapLogger
	if base == nil {
		var err error
		base, err = buildZapLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	core := &zapCore{
		logger:     base,
		sanitizer:  opts.sanitizer,
		notifier:   opts.notifier,
		retryDelay: opts.retryDelay,
		maxRetries: opts.maxRetries,
	}
	core.lastError.Store("")

	if core.notifier != nil {
		core.notifyCh = make(chan observability.LogEntry, opts.bufferSize)
		go core.runNotifier()
	}

	return &Logger{
		core:   core,
		log:    base,
		fields: map[string]any{},
	}, nil
}

func normalizeConfig(config observability.LoggerConfig) observability.LoggerConfig {
	cfg := config
	if strings.TrimSpace(cfg.Format) == "" {
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			cfg.Format = "json"
		} else {
			cfg.Format = "console"
		}
	}
	if strings.TrimSpace(cfg.Level) == "" {
		cfg.Level = levelInfo
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return cfg
}

func buildZapLogger(cfg observability.LoggerConfig) (*ubzap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if cfg.EnableCaller {
		enc.CallerKey = "caller"
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "console":
		encoder = zapcore.NewConsoleEncoder(enc)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(enc)
	default:
		return nil, errors.New("observability/zap: unsupported log format")
	}

	base := ubzap.New(zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	if cfg.EnableCaller {
		base = base.WithOptions(ubzap.AddCaller())
	}
	if cfg.EnableStack {
		base = base.WithOptions(ubzap.AddStacktrace(zapcore.ErrorLevel))
	}
	return base, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case levelDebug:
		return zapcore.DebugLevel, nil
	case levelInfo, "":
		return zapcore.InfoLevel, nil
	case levelWarn, "warning":
		return zapcore.WarnLevel, nil
	case levelError:
		return zapcore.ErrorLevel, nil
	default:
		return 0, errors.New("observability/zap: unsupported log level")
	}
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.logEntry(levelDebug, message, fields...)
}
func (l *Logger) Info(message string, fields ...map[string]any) {
	l.logEntry(levelInfo, message, fields...)
}
func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.logEntry(levelWarn, message, fields...)
}
func (l *Logger) Error(message string, fields ...map[string]any) {
	l.logEntry(levelError, message, fields...)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	next := l.clone()
	for k, v := range fields {
		next.fields[k] = v
	}
	next.log = next.log.With(zapFields(fields, l.core.sanitizer)...)
	return next
}

func (l *Logger) WithRequestID(requestID string) observability.StructuredLogger {
	next := l.clone()
	next.requestID = requestID
	next.log = next.log.With(ubzap.String("request_id", sanitization.SanitizeLogString(requestID)))
	return next
}

func (l *Logger) WithToolName(toolName string) observability.StructuredLogger {
	next := l.clone()
	next.toolName = toolName
	next.log = next.log.With(ubzap.String("tool_name", sanitization.SanitizeLogString(toolName)))
	return next
}

func (l *Logger) WithClientID(clientID string) observability.StructuredLogger {
	next := l.clone()
	next.clientID = clientID
	next.log = next.log.With(ubzap.String("client_id", sanitization.MaskTrailing(clientID, 4)))
	return next
}

func (l *Logger) WithSessionID(sessionID string) observability.StructuredLogger {
	next := l.clone()
	next.sessionID = sessionID
	next.log = next.log.With(ubzap.String("session_id", sanitization.SanitizeLogString(sessionID)))
	return next
}

func (l *Logger) Flush(ctx context.Context) error {
	if l == nil || l.core == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.core.flushCount.Add(1)
	err := l.core.logger.Sync()
	if err != nil {
		l.core.errorCount.Add(1)
		l.core.lastError.Store(err.Error())
	}
	l.core.waitNotifier(ctx)
	l.core.lastFlushNanos.Store(time.Now().UnixNano())
	return err
}

func (l *Logger) Close() error {
	if l == nil || l.core == nil {
		return nil
	}
	return l.core.close()
}

func (l *Logger) IsHealthy() bool {
	if l == nil || l.core == nil || l.core.closed.Load() {
		return false
	}
	return l.core.lastErrorString() == ""
}

func (l *Logger) Stats() observability.LoggerStats {
	if l == nil || l.core == nil {
		return observability.LoggerStats{}
	}
	return observability.LoggerStats{
		LastFlush:      time.Unix(0, l.core.lastFlushNanos.Load()),
		LastError:      l.core.lastErrorString(),
		EntriesLogged:  l.core.entriesLogged.Load(),
		EntriesDropped: l.core.entriesDropped.Load(),
		FlushCount:     l.core.flushCount.Load(),
		ErrorCount:     l.core.errorCount.Load(),
	}
}

func (l *Logger) clone() *Logger {
	if l == nil {
		return &Logger{}
	}
	nextFields := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		nextFields[k] = v
	}
	return &Logger{
		core:      l.core,
		log:       l.log,
		fields:    nextFields,
		requestID: l.requestID,
		toolName:  l.toolName,
		clientID:  l.clientID,
		sessionID: l.sessionID,
	}
}

func (l *Logger) logEntry(level string, message string, fields ...map[string]any) {
	if l == nil || l.core == nil || l.log == nil || l.core.closed.Load() {
		return
	}

	message = sanitization.SanitizeLogString(message)
	callFields := map[string]any{}
	for _, set := range fields {
		for k, v := range set {
			callFields[k] = v
		}
	}

	l.write(level, message, zapFields(callFields, l.core.sanitizer))
	l.core.entriesLogged.Add(1)

	if level == levelError && l.core.notifier != nil {
		l.core.enqueue(l.notificationEntry(level, message, callFields))
	}
}

func (l *Logger) write(level string, message string, fields []ubzap.Field) {
	switch level {
	case levelDebug:
		l.log.Debug(message, fields...)
	case levelWarn:
		l.log.Warn(message, fields...)
	case levelError:
		l.log.Error(message, fields...)
	default:
		l.log.Info(message, fields...)
	}
}

func (l *Logger) notificationEntry(level string, message string, callFields map[string]any) observability.LogEntry {
	merged := make(map[string]any, len(l.fields)+len(callFields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range callFields {
		merged[k] = v
	}
	sanitized := make(map[string]any, len(merged))
	for k, v := range merged {
		if l.core.sanitizer != nil {
			sanitized[k] = l.core.sanitizer(k, v)
		} else {
			sanitized[k] = v
		}
	}
	clientID := l.clientID
	if clientID != "" {
		clientID = sanitization.MaskTrailing(clientID, 4)
	}
	return observability.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Fields:    sanitized,

		RequestID: l.requestID,
		ToolName:  l.toolName,
		ClientID:  clientID,
		SessionID: l.sessionID,
	}
}

func zapFields(fields map[string]any, sanitizerFn observability.SanitizerFunc) []ubzap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]ubzap.Field, 0, len(fields))
	for k, v := range fields {
		if sanitizerFn != nil {
			v = sanitizerFn(k, v)
		}
		out = append(out, ubzap.Any(k, v))
	}
	return out
}

func (c *zapCore) enqueue(entry observability.LogEntry) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.closed.Load() || c.notifyCh == nil {
		c.entriesDropped.Add(1)
		return
	}

	c.notifyWg.Add(1)
	select {
	case c.notifyCh <- entry:
	default:
		c.notifyWg.Done()
		c.entriesDropped.Add(1)
	}
}

func (c *zapCore) runNotifier() {
	for entry := range c.notifyCh {
		if err := c.notifyWithRetries(entry); err != nil {
			c.errorCount.Add(1)
			c.lastError.Store(err.Error())
		}
		c.notifyWg.Done()
	}
}

func (c *zapCore) notifyWithRetries(entry observability.LogEntry) error {
	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := c.retryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.notifier.Notify(context.Background(), entry); err != nil {
			lastErr = err
			if attempt < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (c *zapCore) waitNotifier(ctx context.Context) {
	if c.notifyCh == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.notifyWg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (c *zapCore) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.notifyMu.Lock()
		c.closed.Store(true)
		if c.notifyCh != nil {
			close(c.notifyCh)
			c.notifyCh = nil
		}
		c.notifyMu.Unlock()

		c.notifyWg.Wait()
		err = c.logger.Sync()
		if err != nil {
			c.errorCount.Add(1)
			c.lastError.Store(err.Error())
		}
	})
	return err
}

func (c *zapCore) lastErrorString() string {
	if c == nil {
		return ""
	}
	s, ok := c.lastError.Load().(string)
	if !ok {
		return ""
	}
	return s
}
