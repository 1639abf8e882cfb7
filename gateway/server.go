// Package gateway is the runtime shared by the tool Lambdas behind the
// AgentCore gateway. It parses direct tool invocations, enforces rate limits
// and token claims, dispatches to registered tools, and wraps every outcome
// in the response envelope the gateway expects.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/quicksuite-labs/agentgateway/gateway/auth"
	"github.com/quicksuite-labs/agentgateway/gateway/ratelimit"
	"github.com/quicksuite-labs/agentgateway/gateway/seclog"
	"github.com/quicksuite-labs/agentgateway/pkg/observability"
)

// DefaultMaxPayloadBytes rejects events larger than 100 KiB before any tool
// logic runs.
const DefaultMaxPayloadBytes = 100 * 1024

// TokenValidator checks forwarded bearer tokens.
type TokenValidator interface {
	Validate(ctx context.Context, bearerToken string) (*auth.Claims, error)
}

// Server dispatches gateway tool invocations for one Lambda.
type Server struct {
	registry *ToolRegistry
	logger   observability.StructuredLogger
	clock    Clock
	ids      IDGenerator

	validator TokenValidator
	limiter   ratelimit.Limiter
	security  *seclog.Recorder

	maxPayloadBytes int
	toolNamePrefix  string
}

type ServerOption func(*Server)

func WithLogger(logger observability.StructuredLogger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock Clock) ServerOption {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithIDGenerator(ids IDGenerator) ServerOption {
	return func(s *Server) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithTokenValidator enables claim checks on forwarded bearer tokens.
// Invocations without a token still pass; the gateway performs inbound auth
// before the Lambda runs.
func WithTokenValidator(validator TokenValidator) ServerOption {
	return func(s *Server) { s.validator = validator }
}

// WithRateLimiter throttles by caller source IP. Limiter errors fail open so
// a degraded DynamoDB table cannot take the tool down.
func WithRateLimiter(limiter ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = limiter }
}

func WithSecurityRecorder(recorder *seclog.Recorder) ServerOption {
	return func(s *Server) { s.security = recorder }
}

func WithMaxPayloadBytes(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxPayloadBytes = n
		}
	}
}

// WithToolNamePrefix flags invocations whose tool name does not carry the
// expected prefix as suspicious before dispatch.
func WithToolNamePrefix(prefix string) ServerOption {
	return func(s *Server) { s.toolNamePrefix = prefix }
}

func NewServer(registry *ToolRegistry, options ...ServerOption) *Server {
	if registry == nil {
		registry = NewToolRegistry()
	}
	s := &Server{
		registry:        registry,
		logger:          observability.NewNoOpLogger(),
		clock:           RealClock{},
		ids:             RandomIDGenerator{},
		maxPayloadBytes: DefaultMaxPayloadBytes,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.security == nil {
		s.security = seclog.NewRecorder(s.logger)
	}
	return s
}

// Handler adapts the server to the aws-lambda-go entry point signature.
// Errors are always encoded in the envelope so the gateway sees a response
// rather than a function error.
func (s *Server) Handler() func(ctx context.Context, raw json.RawMessage) (Envelope, error) {
	return func(ctx context.Context, raw json.RawMessage) (Envelope, error) {
		return s.Handle(ctx, raw), nil
	}
}

// Handle runs one invocation through the full pipeline.
func (s *Server) Handle(ctx context.Context, raw json.RawMessage) Envelope {
	inv, err := ParseInvocation(ctx, raw)
	if err != nil {
		s.logger.Warn("invocation rejected", map[string]any{"error": err.Error()})
		return ErrorEnvelope(err)
	}

	requestID := inv.RequestID
	if requestID == "" {
		requestID = s.ids.NewID()
	}
	logger := s.logger.WithRequestID(requestID).WithToolName(inv.ToolName)

	if env, rejected := s.screen(ctx, inv, requestID, logger); rejected {
		return env
	}

	claims, env, rejected := s.authenticate(ctx, inv, requestID, logger)
	if rejected {
		return env
	}
	if claims != nil {
		logger = logger.WithClientID(claims.ClientID)
		ctx = WithClaims(ctx, claims)
	}

	start := s.clock.Now()
	data, err := s.registry.Call(ctx, inv.ToolName, inv.Arguments)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		toolErr := AsToolError(err)
		logger.Error("tool invocation failed", map[string]any{
			"error_code":  toolErr.Code,
			"error":       err.Error(),
			"duration_ms": elapsed.Milliseconds(),
		})
		if toolErr.Code == CodeAccessDenied {
			s.security.Record(ctx, seclog.Event{
				Type:      seclog.EventAccessDenied,
				ToolName:  inv.ToolName,
				SourceIP:  inv.SourceIP,
				RequestID: requestID,
				Reason:    toolErr.Message,
			})
		}
		return ErrorEnvelope(err)
	}

	logger.Info("tool invocation succeeded", map[string]any{
		"duration_ms": elapsed.Milliseconds(),
	})
	return SuccessEnvelope(data)
}

// screen applies payload and abuse checks that run before authentication.
func (s *Server) screen(ctx context.Context, inv *Invocation, requestID string, logger observability.StructuredLogger) (Envelope, bool) {
	if inv.PayloadBytes > s.maxPayloadBytes {
		s.security.Record(ctx, seclog.Event{
			Type:      seclog.EventSuspiciousRequest,
			ToolName:  inv.ToolName,
			SourceIP:  inv.SourceIP,
			RequestID: requestID,
			Reason:    "payload exceeds size limit",
			Details:   map[string]any{"payload_bytes": inv.PayloadBytes, "limit_bytes": s.maxPayloadBytes},
		})
		return ErrorEnvelope(NewToolError(CodeRequestTooLarge,
			fmt.Sprintf("request payload exceeds %d bytes", s.maxPayloadBytes))), true
	}

	if s.toolNamePrefix != "" && !strings.HasPrefix(inv.ToolName, s.toolNamePrefix) {
		s.security.Record(ctx, seclog.Event{
			Type:      seclog.EventSuspiciousRequest,
			ToolName:  inv.ToolName,
			SourceIP:  inv.SourceIP,
			RequestID: requestID,
			Reason:    "tool name outside expected namespace",
		})
		return ErrorEnvelope(NewToolError(CodeToolNotFound, "unknown tool: "+inv.ToolName)), true
	}

	if reason := keyTraversalReason(inv.Arguments); reason != "" {
		s.security.Record(ctx, seclog.Event{
			Type:      seclog.EventSuspiciousRequest,
			ToolName:  inv.ToolName,
			SourceIP:  inv.SourceIP,
			RequestID: requestID,
			Reason:    reason,
		})
		return ErrorEnvelope(NewToolError(CodeValidationError, "invalid key")), true
	}

	if s.limiter != nil && inv.SourceIP != "" {
		decision, err := s.limiter.Allow(ctx, inv.SourceIP)
		switch {
		case err != nil:
			// Fail open: throttling is best-effort protection, not a
			// correctness requirement.
			logger.Warn("rate limiter unavailable", map[string]any{"error": err.Error()})
		case !decision.Allowed:
			s.security.Record(ctx, seclog.Event{
				Type:      seclog.EventRateLimitExceeded,
				ToolName:  inv.ToolName,
				SourceIP:  inv.SourceIP,
				RequestID: requestID,
				Details:   map[string]any{"count": decision.Count, "limit": decision.Limit},
			})
			env := ErrorEnvelope(NewToolError(CodeRateLimited, "rate limit exceeded"))
			if decision.RetryAfter > 0 {
				seconds := int(decision.RetryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				env.Headers["Retry-After"] = strconv.Itoa(seconds)
			}
			return env, true
		}
	}

	return Envelope{}, false
}

// keyTraversalReason inspects a top-level key argument for path traversal.
// Tools validate keys again against their own rules; this rejects the
// obvious attack shapes before any tool logic runs.
func keyTraversalReason(args json.RawMessage) string {
	var in struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &in); err != nil || in.Key == "" {
		return ""
	}
	switch {
	case strings.Contains(in.Key, ".."):
		return "key contains path traversal"
	case strings.HasPrefix(in.Key, "/"):
		return "key is an absolute path"
	case strings.Contains(in.Key, `\`):
		return "key contains backslash"
	}
	return ""
}

func (s *Server) authenticate(ctx context.Context, inv *Invocation, requestID string, logger observability.StructuredLogger) (*auth.Claims, Envelope, bool) {
	if s.validator == nil || inv.AuthToken == "" {
		return nil, Envelope{}, false
	}

	claims, err := s.validator.Validate(ctx, inv.AuthToken)
	if err != nil {
		event := seclog.Event{
			Type:      seclog.EventTokenValidationFailure,
			ToolName:  inv.ToolName,
			SourceIP:  inv.SourceIP,
			RequestID: requestID,
			Reason:    err.Error(),
		}
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			event.Details = map[string]any{"error_code": authErr.Code}
		}
		s.security.Record(ctx, event)
		return nil, ErrorEnvelope(NewToolError(CodeUnauthorized, "token validation failed")), true
	}

	s.security.Record(ctx, seclog.Event{
		Type:      seclog.EventAuthSuccess,
		ToolName:  inv.ToolName,
		SourceIP:  inv.SourceIP,
		ClientID:  claims.ClientID,
		RequestID: requestID,
	})
	logger.Debug("token claims validated")
	return claims, Envelope{}, false
}

type claimsContextKey struct{}

// WithClaims attaches validated claims to the context for tool handlers.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the validated claims, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok
}
