// Package bootstrap wires the runtime pieces every tool Lambda shares:
// the structured logger, the token validator, rate limiting, and the
// security event recorder. Each cmd main calls into it and adds only its
// own tool registrations.
package bootstrap

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/theory-cloud/tabletheory"
	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tablesession "github.com/theory-cloud/tabletheory/pkg/session"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/gateway/auth"
	"github.com/quicksuite-labs/agentgateway/gateway/ratelimit"
	"github.com/quicksuite-labs/agentgateway/gateway/seclog"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/pkg/observability"
	obzap "github.com/quicksuite-labs/agentgateway/pkg/observability/zap"
	"github.com/quicksuite-labs/agentgateway/pkg/sanitization"
)

// Logger builds the zap-backed logger with field sanitization and, when
// ERROR_NOTIFICATIONS_TOPIC_ARN is set, the SNS error notifier.
func Logger(ctx context.Context, common config.Common) (observability.StructuredLogger, error) {
	return obzap.NewLogger(observability.LoggerConfig{Level: common.LogLevel},
		obzap.WithSanitizer(sanitization.SanitizeFieldValue),
		obzap.WithEnvironmentErrorNotifications(ctx),
	)
}

// ServerOptions assembles the shared server pipeline: logger, token claim
// validation when a Cognito issuer is configured, DynamoDB-backed rate
// limiting when a table is configured (in-memory otherwise), and the
// CloudWatch security log sink when a log group is configured.
func ServerOptions(awsCfg aws.Config, common config.Common, logger observability.StructuredLogger, toolPrefix string) []gateway.ServerOption {
	options := []gateway.ServerOption{
		gateway.WithLogger(logger),
	}
	if toolPrefix != "" {
		options = append(options, gateway.WithToolNamePrefix(toolPrefix))
	}

	if common.CognitoIssuer != "" {
		options = append(options, gateway.WithTokenValidator(auth.NewValidator(common.AuthConfig())))
	}

	if common.RateLimitTable != "" {
		limiter, err := dynamoLimiter(awsCfg, common)
		if err == nil {
			options = append(options, gateway.WithRateLimiter(limiter))
		} else {
			logger.Warn("falling back to in-memory rate limiting", map[string]any{"error": err.Error()})
			options = append(options, gateway.WithRateLimiter(ratelimit.NewMemoryLimiter(common.RateLimitConfig())))
		}
	} else {
		options = append(options, gateway.WithRateLimiter(ratelimit.NewMemoryLimiter(common.RateLimitConfig())))
	}

	if common.SecurityLogGroup != "" {
		sink := seclog.NewCloudWatchSink(
			cloudwatchlogs.NewFromConfig(awsCfg), common.SecurityLogGroup, logStreamName())
		options = append(options, gateway.WithSecurityRecorder(
			seclog.NewRecorder(logger, seclog.WithSink(sink))))
	}

	return options
}

// TableDB opens the TableTheory handle backing the DynamoDB stores. Table
// names resolve from the environment via each model's TableName.
func TableDB(awsCfg aws.Config) (tablecore.DB, error) {
	return tabletheory.NewBasic(tablesession.Config{Region: awsCfg.Region})
}

func dynamoLimiter(awsCfg aws.Config, common config.Common) (ratelimit.Limiter, error) {
	db, err := TableDB(awsCfg)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewDynamoLimiter(db, common.RateLimitConfig())
}

// logStreamName derives a per-function stream name so concurrent Lambdas do
// not contend on sequence tokens.
func logStreamName() string {
	if name := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); name != "" {
		return name
	}
	return "security-events"
}
