// Lambda entry point for the Bedrock knowledge base retrieval tools.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/internal/bootstrap"
	"github.com/quicksuite-labs/agentgateway/internal/config"
	"github.com/quicksuite-labs/agentgateway/tools/kb"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadKB()
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

	svc := kb.NewService(
		bedrockagent.NewFromConfig(awsCfg),
		bedrockagentruntime.NewFromConfig(awsCfg),
		awsCfg.Region,
		kb.WithDefaultKnowledgeBase(cfg.KnowledgeBaseID),
	)
	registry := gateway.NewToolRegistry()
	kb.Register(registry, svc)

	server := gateway.NewServer(registry,
		bootstrap.ServerOptions(awsCfg, cfg.Common, logger, "")...)
	lambda.Start(server.Handler())
}
