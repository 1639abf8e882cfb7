package infra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsathena"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsbedrockagentcore"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsglue"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/actuarial"
	"github.com/quicksuite-labs/agentgateway/tools/dataquery"
	"github.com/quicksuite-labs/agentgateway/tools/kb"
	"github.com/quicksuite-labs/agentgateway/tools/redshift"
	"github.com/quicksuite-labs/agentgateway/tools/s3crud"
)

// SuiteStack deploys the whole tool suite: Cognito auth, the AgentCore MCP
// gateway, and one Lambda plus gateway target per configured tool family.
type SuiteStack struct {
	awscdk.Stack

	// Config is the stack configuration.
	Config Config

	// Auth holds the Cognito resources backing the JWT authorizer.
	Auth *authResources

	// Gateway is the AgentCore MCP gateway fronting the tool Lambdas.
	Gateway awsbedrockagentcore.CfnGateway

	// Functions contains the tool Lambdas keyed by target name.
	Functions map[string]awslambda.Function

	rateLimitTable   awsdynamodb.Table
	securityLogGroup awslogs.LogGroup

	// Claims data resources, created when the data query or actuarial tools
	// are enabled.
	claimsBucket     awss3.Bucket
	resultsBucket    awss3.Bucket
	sessionTable     awsdynamodb.Table
	glueDatabaseName string
	workgroupName    string
}

// NewSuiteStack creates the gateway tool suite stack.
func NewSuiteStack(scope constructs.Construct, id string, cfg Config) *SuiteStack {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid stack configuration: %v", err))
	}

	stack := awscdk.NewStack(scope, jsii.String(id), &awscdk.StackProps{
		StackName:   jsii.String(cfg.StackName),
		Description: jsii.String(cfg.Description),
		Tags:        convertTags(cfg.Tags),
	})

	s := &SuiteStack{
		Stack:     stack,
		Config:    cfg,
		Functions: make(map[string]awslambda.Function),
	}

	s.createSharedResources()
	s.createAuth()
	s.createGateway()

	if cfg.Tools.DataQuery != nil || cfg.Tools.Actuarial != nil {
		s.createClaimsDataResources()
	}
	if cfg.Tools.S3CRUD != nil {
		s.createS3CRUDTool()
	}
	if cfg.Tools.KB != nil {
		s.createKBTool()
	}
	if cfg.Tools.Redshift != nil {
		s.createRedshiftTool()
	}
	if cfg.Tools.DataQuery != nil {
		s.createDataQueryTool()
	}
	if cfg.Tools.Actuarial != nil {
		s.createActuarialTool()
	}

	s.addOutputs()
	return s
}

// createSharedResources provisions the rate limit table and the security
// event log group every Lambda writes to.
func (s *SuiteStack) createSharedResources() {
	s.rateLimitTable = awsdynamodb.NewTable(s.Stack, jsii.String("RateLimitTable"), &awsdynamodb.TableProps{
		PartitionKey:        &awsdynamodb.Attribute{Name: jsii.String("PK"), Type: awsdynamodb.AttributeType_STRING},
		SortKey:             &awsdynamodb.Attribute{Name: jsii.String("SK"), Type: awsdynamodb.AttributeType_STRING},
		BillingMode:         awsdynamodb.BillingMode_PAY_PER_REQUEST,
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       awscdk.RemovalPolicy_DESTROY,
	})

	s.securityLogGroup = awslogs.NewLogGroup(s.Stack, jsii.String("SecurityEvents"), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String(fmt.Sprintf("/%s/security-events", s.Config.ProjectName)),
		Retention:     awslogs.RetentionDays_THREE_MONTHS,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
}

// createGateway provisions the AgentCore MCP gateway with the Cognito JWT
// authorizer. Targets are attached by the per-tool builders.
func (s *SuiteStack) createGateway() {
	role := awsiam.NewRole(s.Stack, jsii.String("GatewayRole"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("bedrock-agentcore.amazonaws.com"), nil),
		InlinePolicies: &map[string]awsiam.PolicyDocument{
			"GatewayPolicy": awsiam.NewPolicyDocument(&awsiam.PolicyDocumentProps{
				Statements: &[]awsiam.PolicyStatement{
					awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
						Sid:       jsii.String("BedrockAgentCoreAccess"),
						Effect:    awsiam.Effect_ALLOW,
						Actions:   jsii.Strings("bedrock-agentcore:*"),
						Resources: jsii.Strings("arn:aws:bedrock-agentcore:*:*:*"),
					}),
					awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
						Sid:       jsii.String("GetSecretValue"),
						Effect:    awsiam.Effect_ALLOW,
						Actions:   jsii.Strings("secretsmanager:GetSecretValue"),
						Resources: jsii.Strings("*"),
					}),
					awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
						Sid:       jsii.String("LambdaInvokeAccess"),
						Effect:    awsiam.Effect_ALLOW,
						Actions:   jsii.Strings("lambda:InvokeFunction"),
						Resources: jsii.Strings("arn:aws:lambda:*:*:function:*"),
					}),
				},
			}),
		},
	})

	s.Gateway = awsbedrockagentcore.NewCfnGateway(s.Stack, jsii.String("Gateway"), &awsbedrockagentcore.CfnGatewayProps{
		Name:           jsii.String(fmt.Sprintf("%s-gateway", strings.ToLower(s.Config.StackName))),
		Description:    jsii.String(s.Config.Description),
		ProtocolType:   jsii.String("MCP"),
		AuthorizerType: jsii.String("CUSTOM_JWT"),
		AuthorizerConfiguration: &awsbedrockagentcore.CfnGateway_AuthorizerConfigurationProperty{
			CustomJwtAuthorizer: &awsbedrockagentcore.CfnGateway_CustomJWTAuthorizerConfigurationProperty{
				DiscoveryUrl:   s.discoveryURL(),
				AllowedClients: &[]*string{s.Auth.Client.UserPoolClientId()},
			},
		},
		RoleArn: role.RoleArn(),
		Tags:    convertTags(s.Config.Tags),
	})
}

// addGatewayTarget attaches one Lambda target to the gateway, advertising the
// tool definitions the Lambda itself registers at runtime.
func (s *SuiteStack) addGatewayTarget(id, name string, fn awslambda.Function, register registerFunc) {
	target := awsbedrockagentcore.NewCfnGatewayTarget(s.Stack, jsii.String(id), &awsbedrockagentcore.CfnGatewayTargetProps{
		Name:              jsii.String(name),
		GatewayIdentifier: s.Gateway.AttrGatewayIdentifier(),
		CredentialProviderConfigurations: []any{
			&awsbedrockagentcore.CfnGatewayTarget_CredentialProviderConfigurationProperty{
				CredentialProviderType: jsii.String("GATEWAY_IAM_ROLE"),
			},
		},
		TargetConfiguration: &awsbedrockagentcore.CfnGatewayTarget_TargetConfigurationProperty{
			Mcp: &awsbedrockagentcore.CfnGatewayTarget_McpTargetConfigurationProperty{
				Lambda: &awsbedrockagentcore.CfnGatewayTarget_McpLambdaTargetConfigurationProperty{
					LambdaArn: fn.FunctionArn(),
					ToolSchema: &awsbedrockagentcore.CfnGatewayTarget_ToolSchemaProperty{
						InlinePayload: mustRenderToolSchema(register),
					},
				},
			},
		},
	})
	target.AddDependency(s.Gateway)
}

// createS3CRUDTool provisions the document bucket and its Lambda.
func (s *SuiteStack) createS3CRUDTool() {
	cfg := s.Config.Tools.S3CRUD

	bucket := awss3.NewBucket(s.Stack, jsii.String("DocumentBucket"), &awss3.BucketProps{
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})

	env := map[string]*string{
		"S3_BUCKET_NAME": bucket.BucketName(),
	}
	if cfg.MaxObjectSize > 0 {
		env["MAX_OBJECT_SIZE"] = jsii.String(strconv.FormatInt(cfg.MaxObjectSize, 10))
	}
	if cfg.MaxKeyLength > 0 {
		env["MAX_KEY_LENGTH"] = jsii.String(strconv.Itoa(cfg.MaxKeyLength))
	}

	fn, role := s.newToolFunction(toolFunctionSpec{
		id:   "S3CRUDLambda",
		name: "s3-crud-mcp",
		cfg:  cfg.LambdaConfig,
		env:  env,
	})
	bucket.GrantReadWrite(role, nil)

	s.addGatewayTarget("S3CRUDTarget", "s3-crud-target", fn, func(r *gateway.ToolRegistry) {
		s3crud.Register(r, nil)
	})
}

// createKBTool provisions the knowledge base retrieval Lambda.
func (s *SuiteStack) createKBTool() {
	cfg := s.Config.Tools.KB

	env := map[string]*string{}
	if cfg.KnowledgeBaseID != "" {
		env["KNOWLEDGE_BASE_ID"] = jsii.String(cfg.KnowledgeBaseID)
	}

	fn, role := s.newToolFunction(toolFunctionSpec{
		id:   "KBRetrievalLambda",
		name: "kb-retrieval-mcp",
		cfg:  cfg.LambdaConfig,
		env:  env,
	})
	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"bedrock:Retrieve",
			"bedrock:GetKnowledgeBase",
			"bedrock:ListKnowledgeBases",
		),
		Resources: jsii.Strings("*"),
	}))

	s.addGatewayTarget("KBRetrievalTarget", "kb-retrieval-target", fn, func(r *gateway.ToolRegistry) {
		kb.Register(r, nil)
	})
}

// createRedshiftTool provisions the Redshift Data API Lambda.
func (s *SuiteStack) createRedshiftTool() {
	cfg := s.Config.Tools.Redshift

	env := map[string]*string{
		"REDSHIFT_DATABASE": jsii.String(cfg.Database),
	}
	if cfg.ClusterIdentifier != "" {
		env["REDSHIFT_CLUSTER_IDENTIFIER"] = jsii.String(cfg.ClusterIdentifier)
		env["REDSHIFT_DB_USER"] = jsii.String(cfg.DBUser)
	}
	if cfg.WorkgroupName != "" {
		env["REDSHIFT_WORKGROUP_NAME"] = jsii.String(cfg.WorkgroupName)
	}

	fn, role := s.newToolFunction(toolFunctionSpec{
		id:   "RedshiftQueryLambda",
		name: "redshift-query-mcp",
		cfg:  cfg.LambdaConfig,
		env:  env,
	})
	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"redshift:DescribeClusters",
			"redshift:GetClusterCredentials",
			"redshift-serverless:ListWorkgroups",
			"redshift-serverless:GetWorkgroup",
			"redshift-serverless:GetCredentials",
			"redshift-data:ExecuteStatement",
			"redshift-data:DescribeStatement",
			"redshift-data:GetStatementResult",
			"redshift-data:ListStatements",
			"redshift-data:CancelStatement",
		),
		Resources: jsii.Strings("*"),
	}))

	s.addGatewayTarget("RedshiftQueryTarget", "redshift-query-target", fn, func(r *gateway.ToolRegistry) {
		redshift.Register(r, nil)
	})
}

// createClaimsDataResources provisions the shared claims analytics plumbing:
// claims and Athena results buckets, the Glue database and crawler, the
// Athena workgroup, and the session table handed between the data query and
// actuarial tools.
func (s *SuiteStack) createClaimsDataResources() {
	lower := strings.ToLower(s.Config.StackName)
	s.glueDatabaseName = fmt.Sprintf("%s-claims-db", lower)
	s.workgroupName = fmt.Sprintf("%s-workgroup", lower)

	s.claimsBucket = awss3.NewBucket(s.Stack, jsii.String("ClaimsBucket"), &awss3.BucketProps{
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})
	s.resultsBucket = awss3.NewBucket(s.Stack, jsii.String("AthenaResultsBucket"), &awss3.BucketProps{
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})

	database := awsglue.NewCfnDatabase(s.Stack, jsii.String("ClaimsDatabase"), &awsglue.CfnDatabaseProps{
		CatalogId: s.Stack.Account(),
		DatabaseInput: &awsglue.CfnDatabase_DatabaseInputProperty{
			Name:        jsii.String(s.glueDatabaseName),
			Description: jsii.String("Insurance claims data catalog"),
		},
	})

	crawlerRole := awsiam.NewRole(s.Stack, jsii.String("ClaimsCrawlerRole"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("glue.amazonaws.com"), nil),
		ManagedPolicies: &[]awsiam.IManagedPolicy{
			awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AWSGlueServiceRole")),
		},
	})
	s.claimsBucket.GrantRead(crawlerRole, nil)

	crawler := awsglue.NewCfnCrawler(s.Stack, jsii.String("ClaimsCrawler"), &awsglue.CfnCrawlerProps{
		Name:         jsii.String(fmt.Sprintf("%s-claims-crawler", lower)),
		Role:         crawlerRole.RoleArn(),
		DatabaseName: jsii.String(s.glueDatabaseName),
		Targets: &awsglue.CfnCrawler_TargetsProperty{
			S3Targets: &[]*awsglue.CfnCrawler_S3TargetProperty{
				{Path: jsii.String(fmt.Sprintf("s3://%s/claims/", *s.claimsBucket.BucketName()))},
			},
		},
		SchemaChangePolicy: &awsglue.CfnCrawler_SchemaChangePolicyProperty{
			UpdateBehavior: jsii.String("UPDATE_IN_DATABASE"),
			DeleteBehavior: jsii.String("LOG"),
		},
	})
	crawler.AddDependency(database)

	awsathena.NewCfnWorkGroup(s.Stack, jsii.String("ClaimsWorkGroup"), &awsathena.CfnWorkGroupProps{
		Name:        jsii.String(s.workgroupName),
		Description: jsii.String("Workgroup for claims analysis queries"),
		WorkGroupConfiguration: &awsathena.CfnWorkGroup_WorkGroupConfigurationProperty{
			ResultConfiguration: &awsathena.CfnWorkGroup_ResultConfigurationProperty{
				OutputLocation: jsii.String(fmt.Sprintf("s3://%s/query-results/", *s.resultsBucket.BucketName())),
			},
			EnforceWorkGroupConfiguration:   jsii.Bool(true),
			PublishCloudWatchMetricsEnabled: jsii.Bool(true),
		},
	})

	s.sessionTable = awsdynamodb.NewTable(s.Stack, jsii.String("SessionTable"), &awsdynamodb.TableProps{
		PartitionKey:        &awsdynamodb.Attribute{Name: jsii.String("PK"), Type: awsdynamodb.AttributeType_STRING},
		SortKey:             &awsdynamodb.Attribute{Name: jsii.String("SK"), Type: awsdynamodb.AttributeType_STRING},
		BillingMode:         awsdynamodb.BillingMode_PAY_PER_REQUEST,
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       awscdk.RemovalPolicy_DESTROY,
	})
}

// createDataQueryTool provisions the Glue/Athena data query Lambda.
func (s *SuiteStack) createDataQueryTool() {
	cfg := s.Config.Tools.DataQuery

	env := map[string]*string{
		"ATHENA_DATABASE":       jsii.String(s.glueDatabaseName),
		"ATHENA_WORKGROUP":      jsii.String(s.workgroupName),
		"ATHENA_RESULTS_BUCKET": s.resultsBucket.BucketName(),
		"SESSION_TABLE":         s.sessionTable.TableName(),
	}
	if cfg.DefaultTable != "" {
		env["DEFAULT_TABLE_NAME"] = jsii.String(cfg.DefaultTable)
	}

	fn, role := s.newToolFunction(toolFunctionSpec{
		id:   "DataQueryLambda",
		name: "data-query-mcp",
		cfg:  cfg.LambdaConfig,
		env:  env,
	})
	s.claimsBucket.GrantRead(role, nil)
	s.resultsBucket.GrantReadWrite(role, nil)
	s.sessionTable.GrantReadWriteData(role)
	role.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"glue:GetDatabase",
			"glue:GetDatabases",
			"glue:GetTable",
			"glue:GetTables",
			"glue:GetPartitions",
		),
		Resources: jsii.Strings("*"),
	}))
	role.AddToPolicy(athenaQueryStatement())

	s.addGatewayTarget("DataQueryTarget", "data-query-target", fn, func(r *gateway.ToolRegistry) {
		dataquery.Register(r, nil)
	})
}

// createActuarialTool provisions the actuarial analysis Lambda and its alert
// topic. It reads query results the data query Lambda unloaded to S3 and
// shares the session table with it.
func (s *SuiteStack) createActuarialTool() {
	cfg := s.Config.Tools.Actuarial

	topic := awssns.NewTopic(s.Stack, jsii.String("ActuarialAlertTopic"), &awssns.TopicProps{
		DisplayName: jsii.String("Actuarial analysis alerts"),
	})

	env := map[string]*string{
		"SESSION_TABLE":   s.sessionTable.TableName(),
		"ALERT_TOPIC_ARN": topic.TopicArn(),
	}

	fn, role := s.newToolFunction(toolFunctionSpec{
		id:   "ActuarialLambda",
		name: "actuarial-mcp",
		cfg:  cfg.LambdaConfig,
		env:  env,
	})
	s.resultsBucket.GrantRead(role, nil)
	s.sessionTable.GrantReadWriteData(role)
	topic.GrantPublish(role)
	role.AddToPolicy(athenaQueryStatement())

	s.addGatewayTarget("ActuarialTarget", "actuarial-target", fn, func(r *gateway.ToolRegistry) {
		actuarial.Register(r, nil)
	})
}

func athenaQueryStatement() awsiam.PolicyStatement {
	return awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect: awsiam.Effect_ALLOW,
		Actions: jsii.Strings(
			"athena:StartQueryExecution",
			"athena:GetQueryExecution",
			"athena:GetQueryResults",
			"athena:StopQueryExecution",
			"athena:GetWorkGroup",
		),
		Resources: jsii.Strings("*"),
	})
}

// addOutputs exports the connection details an MCP client needs.
func (s *SuiteStack) addOutputs() {
	awscdk.NewCfnOutput(s.Stack, jsii.String("GatewayUrl"), &awscdk.CfnOutputProps{
		Value:       s.Gateway.AttrGatewayUrl(),
		Description: jsii.String("MCP gateway URL"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("GatewayId"), &awscdk.CfnOutputProps{
		Value:       s.Gateway.AttrGatewayIdentifier(),
		Description: jsii.String("MCP gateway identifier"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("ClientId"), &awscdk.CfnOutputProps{
		Value:       s.Auth.Client.UserPoolClientId(),
		Description: jsii.String("Cognito client ID"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("ClientSecret"), &awscdk.CfnOutputProps{
		Value:       s.Auth.Client.UserPoolClientSecret().UnsafeUnwrap(),
		Description: jsii.String("Cognito client secret"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("UserPoolId"), &awscdk.CfnOutputProps{
		Value:       s.Auth.Pool.UserPoolId(),
		Description: jsii.String("Cognito user pool ID"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("TokenEndpoint"), &awscdk.CfnOutputProps{
		Value:       s.tokenEndpoint(),
		Description: jsii.String("OAuth2 token endpoint"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("DiscoveryUrl"), &awscdk.CfnOutputProps{
		Value:       s.discoveryURL(),
		Description: jsii.String("OIDC discovery URL"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("Scope"), &awscdk.CfnOutputProps{
		Value:       jsii.String(resourceServerID + "/" + gatewayScopeName),
		Description: jsii.String("OAuth scope for token requests"),
	})

	if s.claimsBucket != nil {
		awscdk.NewCfnOutput(s.Stack, jsii.String("ClaimsBucketName"), &awscdk.CfnOutputProps{
			Value:       s.claimsBucket.BucketName(),
			Description: jsii.String("Bucket holding raw claims data"),
		})
		awscdk.NewCfnOutput(s.Stack, jsii.String("ClaimsDatabaseName"), &awscdk.CfnOutputProps{
			Value:       jsii.String(s.glueDatabaseName),
			Description: jsii.String("Glue database cataloging claims data"),
		})
	}
}

func convertTags(tags map[string]string) *map[string]*string {
	if tags == nil {
		return nil
	}
	result := make(map[string]*string)
	for k, v := range tags {
		result[k] = jsii.String(v)
	}
	return &result
}
