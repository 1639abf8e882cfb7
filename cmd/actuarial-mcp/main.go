// Lambda entry point for the actuarial analysis tools.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/internal/bootstrap"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/pkg/observability"
	obzap "github.com/quicksuite-labs/agentgateway/pkg/observability/zap"
	"github.com/quicksuite-labs/agentgateway/pkg/sanitization"
	"github.com/quicksuite-labs/agentgateway/tools/actuarial"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadActuarial()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	logger, err := buildLogger(ctx, cfg, awsCfg)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	db, err := bootstrap.TableDB(awsCfg)
	if err != nil {
		log.Fatalf("open session table: %v", err)
	}
	svc := actuarial.NewService(s3.NewFromConfig(awsCfg), session.NewDynamoStore(db))
	registry := gateway.NewToolRegistry()
	actuarial.Register(registry, svc)

	server := gateway.NewServer(registry,
		bootstrap.ServerOptions(awsCfg, cfg.Common, logger, "")...)
	lambda.Start(server.Handler())
}

// buildLogger routes error-level entries to the stack's alert topic when one
// is configured; otherwise it falls back to the shared env-driven wiring.
func buildLogger(ctx context.Context, cfg config.Actuarial, awsCfg aws.Config) (observability.StructuredLogger, error) {
	if cfg.AlertTopicARN == "" {
		return bootstrap.Logger(ctx, cfg.Common)
	}
	notifier := obzap.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.AlertTopicARN,
		obzap.SNSNotifierOptions{Subject: "actuarial analysis alert"})
	return obzap.NewLogger(observability.LoggerConfig{Level: cfg.LogLevel},
		obzap.WithSanitizer(sanitization.SanitizeFieldValue),
		obzap.WithErrorNotifier(notifier),
	)
}
