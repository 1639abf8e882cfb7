// Package auth validates the claims of Cognito client-credentials access
// tokens forwarded by the gateway. The gateway verifies token signatures at
// the edge; handlers re-check the claims so a misconfigured authorizer
// cannot silently widen access.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultClockSkew is the leeway applied to time-based claim checks.
const DefaultClockSkew = 60 * time.Second

// Claims are the token claims the validator inspects.
type Claims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	ClientID  string `json:"client_id"`
	TokenUse  string `json:"token_use"`
	GrantType string `json:"grant_type"`
	Scope     string `json:"scope"`
	ExpiresAt int64  `json:"exp"`
	NotBefore int64  `json:"nbf"`
	IssuedAt  int64  `json:"iat"`
}

// Scopes returns the token's scopes split from the space-delimited claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether the token carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// Stable validation failure codes recorded in security events.
const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeInvalidTokenFormat = "INVALID_TOKEN_FORMAT"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenNotYetValid   = "TOKEN_NOT_YET_VALID"
	CodeInvalidIssuedAt    = "INVALID_ISSUED_AT"
	CodeInvalidIssuer      = "INVALID_ISSUER"
	CodeInvalidAudience    = "INVALID_AUDIENCE"
	CodeInvalidTokenUse    = "INVALID_TOKEN_USE"
	CodeInvalidGrantType   = "INVALID_GRANT_TYPE"
	CodeInvalidClient      = "INVALID_CLIENT"
	CodeInsufficientScope  = "INSUFFICIENT_SCOPE"
)

// Error is a claim validation failure with a stable code and a loggable
// reason. The reason is safe to record but is never returned to the caller
// verbatim.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return "auth: " + e.Reason
}

func failf(code, format string, args ...any) error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Config configures the validator.
type Config struct {
	// Issuer is the expected Cognito issuer URL,
	// https://cognito-idp.{region}.amazonaws.com/{userPoolId}.
	Issuer string
	// Audience is the expected aud claim. Empty skips the check for
	// Cognito access tokens, which carry the client in client_id instead.
	Audience string
	// ClientIDs are the app clients allowed to call this tool Lambda.
	ClientIDs []string
	// RequiredScopes must all be present on the token.
	RequiredScopes []string
	// ClockSkew defaults to DefaultClockSkew when zero.
	ClockSkew time.Duration
}

// Validator checks access token claims.
type Validator struct {
	cfg Config
	now func() time.Time
}

type ValidatorOption func(*Validator)

func WithNow(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func NewValidator(cfg Config, options ...ValidatorOption) *Validator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	v := &Validator{cfg: cfg, now: time.Now}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate parses the bearer token and checks its claims. It does not verify
// the signature; that happens at the gateway before the Lambda is invoked.
func (v *Validator) Validate(_ context.Context, bearerToken string) (*Claims, error) {
	token := strings.TrimSpace(bearerToken)
	if lower := strings.ToLower(token); strings.HasPrefix(lower, "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" {
		return nil, failf(CodeMissingToken, "token is empty")
	}

	claims, err := ParseClaims(token)
	if err != nil {
		return nil, err
	}

	now := v.now()
	skew := v.cfg.ClockSkew

	if claims.ExpiresAt == 0 {
		return nil, failf(CodeTokenExpired, "token has no expiry")
	}
	if now.After(time.Unix(claims.ExpiresAt, 0).Add(skew)) {
		return nil, failf(CodeTokenExpired, "token expired")
	}
	if claims.NotBefore != 0 && now.Add(skew).Before(time.Unix(claims.NotBefore, 0)) {
		return nil, failf(CodeTokenNotYetValid, "token not yet valid")
	}
	if claims.IssuedAt == 0 {
		return nil, failf(CodeInvalidIssuedAt, "token has no issued-at")
	}
	if time.Unix(claims.IssuedAt, 0).After(now.Add(skew)) {
		return nil, failf(CodeInvalidIssuedAt, "token issued in the future")
	}

	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return nil, failf(CodeInvalidIssuer, "unexpected issuer")
	}
	if v.cfg.Audience != "" && claims.Audience != v.cfg.Audience {
		return nil, failf(CodeInvalidAudience, "unexpected audience")
	}
	if claims.TokenUse != "access" {
		return nil, failf(CodeInvalidTokenUse, "token_use is %q, want access", claims.TokenUse)
	}
	if claims.GrantType != "client_credentials" {
		return nil, failf(CodeInvalidGrantType, "grant_type is %q, want client_credentials", claims.GrantType)
	}
	if len(v.cfg.ClientIDs) > 0 && !contains(v.cfg.ClientIDs, claims.ClientID) {
		return nil, failf(CodeInvalidClient, "client is not allowed")
	}
	for _, scope := range v.cfg.RequiredScopes {
		if !claims.HasScope(scope) {
			return nil, failf(CodeInsufficientScope, "missing required scope %s", scope)
		}
	}

	return claims, nil
}

// ParseClaims decodes the payload segment of a JWT without verifying it.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, failf(CodeInvalidTokenFormat, "token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, failf(CodeInvalidTokenFormat, "token payload is not base64url")
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, failf(CodeInvalidTokenFormat, "token payload is not valid JSON")
	}
	return &claims, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
