// Package config loads tool Lambda configuration from the environment.
// Each Lambda loads its own config type; shared knobs live in Common.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/gateway/auth"
	"github.com/quicksuite-labs/agentgateway/gateway/ratelimit"
)

// Common holds the settings shared by every tool Lambda.
type Common struct {
	Environment string
	ProjectName string
	LogLevel    string

	SecurityLogGroup string
	RateLimitTable   string

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration

	CognitoIssuer    string
	RequiredAudience string
	AllowedClientIDs []string
	RequiredScopes   []string
}

// S3CRUD configures the S3 document store Lambda.
type S3CRUD struct {
	Common
	BucketName    string
	MaxObjectSize int64
	MaxKeyLength  int
}

// KB configures the knowledge base retrieval Lambda.
type KB struct {
	Common
	// KnowledgeBaseID restricts queries to one KB when set.
	KnowledgeBaseID string
}

// Redshift configures the Redshift Data API Lambda. Either
// ClusterIdentifier+DBUser or WorkgroupName must be set.
type Redshift struct {
	Common
	ClusterIdentifier string
	Database          string
	DBUser            string
	WorkgroupName     string
}

// DataQuery configures the Glue/Athena data query Lambda.
type DataQuery struct {
	Common
	GlueDatabase    string
	AthenaWorkgroup string
	ResultsBucket   string
	SessionTable    string
	DefaultTable    string
}

// Actuarial configures the actuarial analysis Lambda.
type Actuarial struct {
	Common
	SessionTable  string
	AlertTopicARN string
}

func loadCommon() Common {
	return Common{
		Environment:          getString("ENVIRONMENT", "dev"),
		ProjectName:          getString("PROJECT_NAME", "quick-suite"),
		LogLevel:             getString("LOG_LEVEL", "info"),
		SecurityLogGroup:     os.Getenv("SECURITY_LOG_GROUP"),
		RateLimitTable:       os.Getenv("RATE_LIMIT_TABLE"),
		RateLimitMaxRequests: getInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:      getDurationSeconds("RATE_LIMIT_WINDOW_SECONDS", time.Minute),
		MaxRetries:           getInt("MAX_RETRIES", 3),
		RetryBackoffBase:     getDurationSeconds("RETRY_BACKOFF_BASE_SECONDS", time.Second),
		RetryBackoffMax:      getDurationSeconds("RETRY_BACKOFF_MAX_SECONDS", 60*time.Second),
		CognitoIssuer:        cognitoIssuer(),
		RequiredAudience:     os.Getenv("REQUIRED_AUDIENCE"),
		AllowedClientIDs:     getList("ALLOWED_CLIENT_IDS"),
		RequiredScopes:       getList("REQUIRED_SCOPES"),
	}
}

// RetryPolicy converts the retry knobs to a gateway policy.
func (c Common) RetryPolicy() gateway.RetryPolicy {
	return gateway.RetryPolicy{
		MaxAttempts: c.MaxRetries,
		BackoffBase: c.RetryBackoffBase,
		BackoffMax:  c.RetryBackoffMax,
	}
}

// RateLimitConfig converts the rate limit knobs to a limiter config.
func (c Common) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests: c.RateLimitMaxRequests,
		Window:      c.RateLimitWindow,
	}
}

// AuthConfig converts the Cognito knobs to a validator config.
func (c Common) AuthConfig() auth.Config {
	return auth.Config{
		Issuer:         c.CognitoIssuer,
		Audience:       c.RequiredAudience,
		ClientIDs:      c.AllowedClientIDs,
		RequiredScopes: c.RequiredScopes,
	}
}

// LoadS3CRUD reads the S3 CRUD Lambda configuration.
func LoadS3CRUD() (S3CRUD, error) {
	cfg := S3CRUD{
		Common:        loadCommon(),
		BucketName:    os.Getenv("S3_BUCKET_NAME"),
		MaxObjectSize: getInt64("MAX_OBJECT_SIZE", 5*1024*1024),
		MaxKeyLength:  getInt("MAX_KEY_LENGTH", 1024),
	}
	if cfg.BucketName == "" {
		return S3CRUD{}, requiredError("S3_BUCKET_NAME")
	}
	return cfg, nil
}

// LoadKB reads the knowledge base Lambda configuration.
func LoadKB() (KB, error) {
	return KB{
		Common:          loadCommon(),
		KnowledgeBaseID: os.Getenv("KNOWLEDGE_BASE_ID"),
	}, nil
}

// LoadRedshift reads the Redshift Lambda configuration.
func LoadRedshift() (Redshift, error) {
	cfg := Redshift{
		Common:            loadCommon(),
		ClusterIdentifier: os.Getenv("REDSHIFT_CLUSTER_IDENTIFIER"),
		Database:          os.Getenv("REDSHIFT_DATABASE"),
		DBUser:            os.Getenv("REDSHIFT_DB_USER"),
		WorkgroupName:     os.Getenv("REDSHIFT_WORKGROUP_NAME"),
	}
	if cfg.Database == "" {
		return Redshift{}, requiredError("REDSHIFT_DATABASE")
	}
	if cfg.ClusterIdentifier == "" && cfg.WorkgroupName == "" {
		return Redshift{}, fmt.Errorf("config: one of REDSHIFT_CLUSTER_IDENTIFIER or REDSHIFT_WORKGROUP_NAME is required")
	}
	if cfg.ClusterIdentifier != "" && cfg.DBUser == "" {
		return Redshift{}, requiredError("REDSHIFT_DB_USER")
	}
	return cfg, nil
}

// LoadDataQuery reads the data query Lambda configuration.
func LoadDataQuery() (DataQuery, error) {
	cfg := DataQuery{
		Common:          loadCommon(),
		GlueDatabase:    os.Getenv("ATHENA_DATABASE"),
		AthenaWorkgroup: getString("ATHENA_WORKGROUP", "primary"),
		ResultsBucket:   os.Getenv("ATHENA_RESULTS_BUCKET"),
		SessionTable:    os.Getenv("SESSION_TABLE"),
		DefaultTable:    os.Getenv("DEFAULT_TABLE_NAME"),
	}
	for name, value := range map[string]string{
		"ATHENA_DATABASE":       cfg.GlueDatabase,
		"ATHENA_RESULTS_BUCKET": cfg.ResultsBucket,
		"SESSION_TABLE":         cfg.SessionTable,
	} {
		if value == "" {
			return DataQuery{}, requiredError(name)
		}
	}
	return cfg, nil
}

// LoadActuarial reads the actuarial Lambda configuration.
func LoadActuarial() (Actuarial, error) {
	cfg := Actuarial{
		Common:        loadCommon(),
		SessionTable:  os.Getenv("SESSION_TABLE"),
		AlertTopicARN: os.Getenv("ALERT_TOPIC_ARN"),
	}
	if cfg.SessionTable == "" {
		return Actuarial{}, requiredError("SESSION_TABLE")
	}
	return cfg, nil
}

func cognitoIssuer() string {
	if issuer := os.Getenv("COGNITO_ISSUER"); issuer != "" {
		return issuer
	}
	poolID := os.Getenv("COGNITO_USER_POOL_ID")
	region := os.Getenv("AWS_REGION")
	if poolID == "" || region == "" {
		return ""
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
}

func requiredError(name string) error {
	return fmt.Errorf("config: %s is required", name)
}

func getString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func getInt(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getInt64(name string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getDurationSeconds(name string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

func getList(name string) []string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
