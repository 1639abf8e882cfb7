// Lambda entry point for the S3 document store tools behind the gateway.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/internal/bootstrap"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/tools/s3crud"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadS3CRUD()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := bootstrap.Logger(ctx, cfg.Common)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	svc := s3crud.NewService(s3.NewFromConfig(awsCfg), cfg.BucketName,
		s3crud.WithRetryPolicy(cfg.RetryPolicy()),
		s3crud.WithLimits(cfg.MaxObjectSize, cfg.MaxKeyLength),
	)
	registry := gateway.NewToolRegistry()
	s3crud.Register(registry, svc)

	server := gateway.NewServer(registry,
		bootstrap.ServerOptions(awsCfg, cfg.Common, logger, "s3_")...)
	lambda.Start(server.Handler())
}
