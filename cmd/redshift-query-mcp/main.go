// Lambda entry point for the Redshift Data API query tools.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/internal/bootstrap"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/tools/redshift"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadRedshift()
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

	svc := redshift.NewService(redshiftdata.NewFromConfig(awsCfg), redshift.Target{
		ClusterIdentifier: cfg.ClusterIdentifier,
		Database:          cfg.Database,
		DBUser:            cfg.DBUser,
		WorkgroupName:     cfg.WorkgroupName,
	})
	registry := gateway.NewToolRegistry()
	redshift.Register(registry, svc)

	server := gateway.NewServer(registry,
		bootstrap.ServerOptions(awsCfg, cfg.Common, logger, "redshift_")...)
	lambda.Start(server.Handler())
}
