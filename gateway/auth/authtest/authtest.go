// Package authtest builds unsigned access tokens for tests. The tokens have
// a syntactically valid JWT shape but a fake signature, matching what the
// claims validator accepts.
package authtest

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// TokenSpec describes the token to build. Zero values get usable defaults
// for a currently-valid client-credentials access token.
type TokenSpec struct {
	Issuer    string
	Audience  string
	ClientID  string
	Scope     string
	TokenUse  string
	GrantType string
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time

	// Extra merges additional claims into the payload.
	Extra map[string]any
}

// Token renders the spec as an unsigned JWT.
func Token(spec TokenSpec) string {
	now := time.Now()
	if spec.TokenUse == "" {
		spec.TokenUse = "access"
	}
	if spec.GrantType == "" {
		spec.GrantType = "client_credentials"
	}
	if spec.ExpiresAt.IsZero() {
		spec.ExpiresAt = now.Add(time.Hour)
	}
	if spec.IssuedAt.IsZero() {
		spec.IssuedAt = now
	}

	claims := map[string]any{
		"iss":        spec.Issuer,
		"client_id":  spec.ClientID,
		"token_use":  spec.TokenUse,
		"grant_type": spec.GrantType,
		"scope":      spec.Scope,
		"exp":        spec.ExpiresAt.Unix(),
		"iat":        spec.IssuedAt.Unix(),
	}
	if spec.Audience != "" {
		claims["aud"] = spec.Audience
	}
	if !spec.NotBefore.IsZero() {
		claims["nbf"] = spec.NotBefore.Unix()
	}
	for k, v := range spec.Extra {
		claims[k] = v
	}

	header := map[string]any{"alg": "RS256", "typ": "JWT", "kid": "test-key"}
	return segment(header) + "." + segment(claims) + "." + base64.RawURLEncoding.EncodeToString([]byte("test-signature"))
}

func segment(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}
