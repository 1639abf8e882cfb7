package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/quicksuite-labs/agentgateway/gateway/auth"
	"github.com/quicksuite-labs/agentgateway/gateway/auth/authtest"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_Example"

func validSpec() authtest.TokenSpec {
	return authtest.TokenSpec{
		Issuer:   testIssuer,
		ClientID: "client-1",
		Scope:    "quick-suite/read quick-suite/write",
	}
}

func newValidator(opts ...auth.ValidatorOption) *auth.Validator {
	return auth.NewValidator(auth.Config{
		Issuer:         testIssuer,
		ClientIDs:      []string{"client-1", "client-2"},
		RequiredScopes: []string{"quick-suite/read"},
	}, opts...)
}

func TestValidateAcceptsValidToken(t *testing.T) {
	claims, err := newValidator().Validate(context.Background(), authtest.Token(validSpec()))
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, "access", claims.TokenUse)
	assert.True(t, claims.HasScope("quick-suite/write"))
}

func TestValidateStripsBearerPrefix(t *testing.T) {
	token := authtest.Token(validSpec())

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		_, err := newValidator().Validate(context.Background(), prefix+token)
		assert.NoError(t, err, prefix)
	}
}

func TestValidateRejections(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		spec authtest.TokenSpec
		code string
	}{
		{
			name: "expired",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.ExpiresAt = now.Add(-2 * time.Hour)
				return s
			}(),
			code: auth.CodeTokenExpired,
		},
		{
			name: "not yet valid",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.NotBefore = now.Add(time.Hour)
				return s
			}(),
			code: auth.CodeTokenNotYetValid,
		},
		{
			name: "issued in the future",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.IssuedAt = now.Add(time.Hour)
				return s
			}(),
			code: auth.CodeInvalidIssuedAt,
		},
		{
			name: "wrong issuer",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.Issuer = "https://evil.example.com"
				return s
			}(),
			code: auth.CodeInvalidIssuer,
		},
		{
			name: "identity token rejected",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.TokenUse = "id"
				return s
			}(),
			code: auth.CodeInvalidTokenUse,
		},
		{
			name: "missing issued at",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.Extra = map[string]any{"iat": nil}
				return s
			}(),
			code: auth.CodeInvalidIssuedAt,
		},
		{
			name: "missing grant type",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.Extra = map[string]any{"grant_type": nil}
				return s
			}(),
			code: auth.CodeInvalidGrantType,
		},
		{
			name: "wrong grant type",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.GrantType = "authorization_code"
				return s
			}(),
			code: auth.CodeInvalidGrantType,
		},
		{
			name: "unknown client",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.ClientID = "client-x"
				return s
			}(),
			code: auth.CodeInvalidClient,
		},
		{
			name: "missing scope",
			spec: func() authtest.TokenSpec {
				s := validSpec()
				s.Scope = "quick-suite/other"
				return s
			}(),
			code: auth.CodeInsufficientScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newValidator().Validate(context.Background(), authtest.Token(tt.spec))
			require.Error(t, err)

			var authErr *auth.Error
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.code, authErr.Code)
		})
	}
}

func TestValidateAudience(t *testing.T) {
	validator := auth.NewValidator(auth.Config{
		Issuer:   testIssuer,
		Audience: "gateway-api",
	})

	spec := validSpec()
	spec.Audience = "gateway-api"
	_, err := validator.Validate(context.Background(), authtest.Token(spec))
	assert.NoError(t, err)

	tests := []struct {
		name     string
		audience string
	}{
		{name: "missing audience", audience: ""},
		{name: "wrong audience", audience: "another-api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			s.Audience = tt.audience
			_, err := validator.Validate(context.Background(), authtest.Token(s))
			require.Error(t, err)

			var authErr *auth.Error
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, auth.CodeInvalidAudience, authErr.Code)
		})
	}
}

func TestValidateClockSkewTolerance(t *testing.T) {
	spec := validSpec()
	spec.ExpiresAt = time.Now().Add(-30 * time.Second)

	// Within the default 60s skew the token still passes.
	_, err := newValidator().Validate(context.Background(), authtest.Token(spec))
	assert.NoError(t, err)

	// A tighter skew rejects it.
	strict := auth.NewValidator(auth.Config{ClockSkew: time.Second})
	_, err = strict.Validate(context.Background(), authtest.Token(spec))
	assert.Error(t, err)
}

func TestValidateMalformedTokens(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "bearer only", token: "Bearer "},
		{name: "not a jwt", token: "just-a-string"},
		{name: "two segments", token: "aaaa.bbbb"},
		{name: "bad base64 payload", token: "aaaa.!!!!.cccc"},
		{name: "payload not json", token: "aaaa.bm90LWpzb24.cccc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newValidator().Validate(context.Background(), tt.token)
			assert.Error(t, err)
		})
	}
}

func TestValidateNeverAcceptsGarbage(t *testing.T) {
	validator := newValidator()
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.StringMatching(`[A-Za-z0-9._-]{0,64}`).Draw(t, "token")
		claims, err := validator.Validate(context.Background(), token)
		if err == nil {
			// Anything accepted must at least carry the allowed client
			// and the expected issuer.
			require.NotNil(t, claims)
			require.Equal(t, testIssuer, claims.Issuer)
		}
	})
}

func TestParseClaims(t *testing.T) {
	token := authtest.Token(validSpec())
	claims, err := auth.ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, []string{"quick-suite/read", "quick-suite/write"}, claims.Scopes())
}
