package infra

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/jsii-runtime-go"
)

// toolFunctionSpec describes one tool Lambda. Env entries are merged over the
// shared runtime environment.
type toolFunctionSpec struct {
	id   string
	name string
	cfg  LambdaConfig
	env  map[string]*string
}

// newToolFunction creates a Go Lambda from a prebuilt asset directory along
// with its execution role, wired to the shared rate limit table and security
// log group, and invokable by the gateway.
func (s *SuiteStack) newToolFunction(spec toolFunctionSpec) (awslambda.Function, awsiam.Role) {
	role := awsiam.NewRole(s.Stack, jsii.String(spec.id+"Role"), &awsiam.RoleProps{
		AssumedBy: awsiam.NewServicePrincipal(jsii.String("lambda.amazonaws.com"), nil),
		ManagedPolicies: &[]awsiam.IManagedPolicy{
			awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String("service-role/AWSLambdaBasicExecutionRole")),
		},
	})
	s.rateLimitTable.GrantReadWriteData(role)
	s.securityLogGroup.GrantWrite(role)

	env := s.commonEnv()
	for k, v := range spec.env {
		env[k] = v
	}

	fn := awslambda.NewFunction(s.Stack, jsii.String(spec.id), &awslambda.FunctionProps{
		FunctionName: jsii.String(fmt.Sprintf("%s-%s", s.Config.StackName, spec.name)),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Handler:      jsii.String("bootstrap"),
		Architecture: awslambda.Architecture_ARM_64(),
		Code:         awslambda.Code_FromAsset(jsii.String(spec.cfg.AssetDir), nil),
		Role:         role,
		MemorySize:   jsii.Number(float64(spec.cfg.MemoryMB)),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(float64(spec.cfg.TimeoutSeconds))),
		Environment:  &env,
	})

	fn.AddPermission(jsii.String("AllowAgentCoreInvoke"), &awslambda.Permission{
		Principal: awsiam.NewServicePrincipal(jsii.String("bedrock-agentcore.amazonaws.com"), nil),
		Action:    jsii.String("lambda:InvokeFunction"),
	})

	s.Functions[spec.name] = fn
	return fn, role
}

// commonEnv builds the environment shared by every tool Lambda. Names match
// what internal/config reads at startup.
func (s *SuiteStack) commonEnv() map[string]*string {
	return map[string]*string{
		"ENVIRONMENT":               jsii.String(s.Config.Environment),
		"PROJECT_NAME":              jsii.String(s.Config.ProjectName),
		"LOG_LEVEL":                 jsii.String(s.Config.LogLevel),
		"RATE_LIMIT_TABLE":          s.rateLimitTable.TableName(),
		"RATE_LIMIT_MAX_REQUESTS":   jsii.String(strconv.Itoa(s.Config.RateLimit.MaxRequests)),
		"RATE_LIMIT_WINDOW_SECONDS": jsii.String(strconv.Itoa(s.Config.RateLimit.WindowSeconds)),
		"SECURITY_LOG_GROUP":        s.securityLogGroup.LogGroupName(),
		"COGNITO_USER_POOL_ID":      s.Auth.Pool.UserPoolId(),
		"ALLOWED_CLIENT_IDS":        s.Auth.Client.UserPoolClientId(),
		"REQUIRED_SCOPES":           jsii.String(resourceServerID + "/" + gatewayScopeName),
	}
}
