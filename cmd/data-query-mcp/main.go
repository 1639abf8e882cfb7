// Lambda entry point for the Glue/Athena claims data query tools.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/internal/bootstrap"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/tools/dataquery"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadDataQuery()
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

	db, err := bootstrap.TableDB(awsCfg)
	if err != nil {
		log.Fatalf("open session table: %v", err)
	}

	svc := dataquery.NewService(dataquery.Deps{
		Glue:     glue.NewFromConfig(awsCfg),
		Athena:   athena.NewFromConfig(awsCfg),
		S3:       s3.NewFromConfig(awsCfg),
		Sessions: session.NewDynamoStore(db),
	}, cfg.GlueDatabase, cfg.AthenaWorkgroup, cfg.ResultsBucket,
		dataquery.WithDefaultTable(cfg.DefaultTable),
	)
	registry := gateway.NewToolRegistry()
	dataquery.Register(registry, svc)

	server := gateway.NewServer(registry,
		bootstrap.ServerOptions(awsCfg, cfg.Common, logger, "")...)
	lambda.Start(server.Handler())
}
