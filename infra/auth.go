package infra

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscognito"
	"github.com/aws/jsii-runtime-go"
)

// gatewayScopeName is the custom scope agents request via client credentials.
const gatewayScopeName = "invoke"

// resourceServerID identifies the resource server; the full OAuth scope is
// "gateway/invoke".
const resourceServerID = "gateway"

// authResources holds the Cognito pieces behind the gateway's JWT authorizer.
type authResources struct {
	Pool   awscognito.UserPool
	Domain awscognito.UserPoolDomain
	Client awscognito.UserPoolClient
}

// createAuth provisions the machine-to-machine Cognito setup: a user pool
// with a hosted domain, a resource server exposing the invoke scope, and a
// client-credentials app client with a generated secret.
func (s *SuiteStack) createAuth() {
	prefix := s.Config.Auth.DomainPrefix
	if prefix == "" {
		prefix = domainPrefixFor(s.Config.StackName)
	}

	pool := awscognito.NewUserPool(s.Stack, jsii.String("UserPool"), &awscognito.UserPoolProps{
		UserPoolName: jsii.String(fmt.Sprintf("%s-user-pool", s.Config.StackName)),
		PasswordPolicy: &awscognito.PasswordPolicy{
			MinLength:        jsii.Number(8),
			RequireUppercase: jsii.Bool(true),
			RequireLowercase: jsii.Bool(true),
			RequireDigits:    jsii.Bool(true),
			RequireSymbols:   jsii.Bool(true),
		},
		Mfa:             awscognito.Mfa_OFF,
		AccountRecovery: awscognito.AccountRecovery_EMAIL_AND_PHONE_WITHOUT_MFA,
	})

	domain := pool.AddDomain(jsii.String("UserPoolDomain"), &awscognito.UserPoolDomainOptions{
		CognitoDomain: &awscognito.CognitoDomainOptions{
			DomainPrefix: jsii.String(prefix),
		},
	})

	invokeScope := awscognito.NewResourceServerScope(&awscognito.ResourceServerScopeProps{
		ScopeName:        jsii.String(gatewayScopeName),
		ScopeDescription: jsii.String("Invoke tools through the gateway"),
	})

	resourceServer := pool.AddResourceServer(jsii.String("ResourceServer"), &awscognito.UserPoolResourceServerOptions{
		Identifier:                 jsii.String(resourceServerID),
		UserPoolResourceServerName: jsii.String(resourceServerID),
		Scopes:                     &[]awscognito.ResourceServerScope{invokeScope},
	})

	client := awscognito.NewUserPoolClient(s.Stack, jsii.String("UserPoolClient"), &awscognito.UserPoolClientProps{
		UserPool:           pool,
		UserPoolClientName: jsii.String(fmt.Sprintf("%s-client", s.Config.StackName)),
		GenerateSecret:     jsii.Bool(true),
		SupportedIdentityProviders: &[]awscognito.UserPoolClientIdentityProvider{
			awscognito.UserPoolClientIdentityProvider_COGNITO(),
		},
		OAuth: &awscognito.OAuthSettings{
			Flows: &awscognito.OAuthFlows{ClientCredentials: jsii.Bool(true)},
			Scopes: &[]awscognito.OAuthScope{
				awscognito.OAuthScope_ResourceServer(resourceServer, invokeScope),
			},
		},
		RefreshTokenValidity:  awscdk.Duration_Days(jsii.Number(30)),
		AuthSessionValidity:   awscdk.Duration_Minutes(jsii.Number(3)),
		EnableTokenRevocation: jsii.Bool(true),
	})

	s.Auth = &authResources{Pool: pool, Domain: domain, Client: client}
}

// discoveryURL returns the OIDC discovery document URL the gateway authorizer
// validates tokens against.
func (s *SuiteStack) discoveryURL() *string {
	return jsii.String(fmt.Sprintf(
		"https://cognito-idp.%s.amazonaws.com/%s/.well-known/openid-configuration",
		*s.Stack.Region(), *s.Auth.Pool.UserPoolId(),
	))
}

// tokenEndpoint returns the hosted domain's OAuth2 token URL.
func (s *SuiteStack) tokenEndpoint() *string {
	return jsii.String(fmt.Sprintf(
		"https://%s.auth.%s.amazoncognito.com/oauth2/token",
		*s.Auth.Domain.DomainName(), *s.Stack.Region(),
	))
}

var domainPrefixPattern = regexp.MustCompile(`[^a-z0-9-]`)

// domainPrefixFor derives a hosted domain prefix from the stack name. The
// prefix must be globally unique and match Cognito's character rules, so the
// sanitized name carries a short hash suffix.
func domainPrefixFor(stackName string) string {
	sanitized := strings.Trim(domainPrefixPattern.ReplaceAllString(strings.ToLower(stackName), "-"), "-")
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	if sanitized == "" {
		sanitized = "gateway"
	}
	sum := sha1.Sum([]byte(stackName))
	return fmt.Sprintf("%s-%s", sanitized, hex.EncodeToString(sum[:])[:6])
}
