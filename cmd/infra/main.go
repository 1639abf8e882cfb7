// CDK application deploying the gateway tool suite.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/quicksuite-labs/agentgateway/infra"
)

func main() {
	defer jsii.Close()

	configPath := flag.String("config", defaultConfigPath(), "path to the stack YAML config")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	app := awscdk.NewApp(nil)
	infra.NewSuiteStack(app, cfg.StackName, *cfg)
	app.Synth(nil)
}

func defaultConfigPath() string {
	if path := os.Getenv("INFRA_CONFIG"); path != "" {
		return path
	}
	return "infra.yaml"
}
