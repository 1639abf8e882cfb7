// Package infra defines the CDK stacks that deploy the gateway tool suite:
// the Cognito client-credentials authorizer, the AgentCore MCP gateway with
// one Lambda target per tool family, and the storage each tool needs.
package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the deployment configuration, loaded from a YAML file. Only the
// tool sections that are present get a Lambda and a gateway target.
type Config struct {
	StackName   string            `yaml:"stackName"`
	Description string            `yaml:"description"`
	Environment string            `yaml:"environment"`
	ProjectName string            `yaml:"projectName"`
	LogLevel    string            `yaml:"logLevel"`
	Tags        map[string]string `yaml:"tags"`

	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// AuthConfig configures the Cognito user pool backing the gateway authorizer.
type AuthConfig struct {
	// DomainPrefix overrides the hosted UI domain prefix. It must be globally
	// unique; when empty a prefix is derived from the stack name.
	DomainPrefix string `yaml:"domainPrefix"`
}

// RateLimitConfig sets the per-caller request budget enforced by the Lambdas.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"maxRequests"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// ToolsConfig selects which tool Lambdas the stack deploys.
type ToolsConfig struct {
	S3CRUD    *S3CRUDConfig    `yaml:"s3crud"`
	KB        *KBConfig        `yaml:"kb"`
	Redshift  *RedshiftConfig  `yaml:"redshift"`
	DataQuery *DataQueryConfig `yaml:"dataQuery"`
	Actuarial *ActuarialConfig `yaml:"actuarial"`
}

// LambdaConfig holds the knobs shared by every tool Lambda. AssetDir must
// contain a linux Go binary named "bootstrap".
type LambdaConfig struct {
	AssetDir       string `yaml:"assetDir"`
	MemoryMB       int    `yaml:"memoryMB"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// S3CRUDConfig configures the document store Lambda and its bucket.
type S3CRUDConfig struct {
	LambdaConfig  `yaml:",inline"`
	MaxObjectSize int64 `yaml:"maxObjectSize"`
	MaxKeyLength  int   `yaml:"maxKeyLength"`
}

// KBConfig configures the knowledge base retrieval Lambda.
type KBConfig struct {
	LambdaConfig    `yaml:",inline"`
	KnowledgeBaseID string `yaml:"knowledgeBaseId"`
}

// RedshiftConfig configures the Redshift Data API Lambda. Either
// ClusterIdentifier plus DBUser or WorkgroupName must be set, matching the
// Lambda's own validation.
type RedshiftConfig struct {
	LambdaConfig      `yaml:",inline"`
	ClusterIdentifier string `yaml:"clusterIdentifier"`
	Database          string `yaml:"database"`
	DBUser            string `yaml:"dbUser"`
	WorkgroupName     string `yaml:"workgroupName"`
}

// DataQueryConfig configures the Glue/Athena data query Lambda. The stack
// creates the Glue database, crawler, workgroup and buckets itself.
type DataQueryConfig struct {
	LambdaConfig `yaml:",inline"`
	DefaultTable string `yaml:"defaultTable"`
}

// ActuarialConfig configures the actuarial analysis Lambda.
type ActuarialConfig struct {
	LambdaConfig `yaml:",inline"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return LoadConfigFromYAML(data)
}

// LoadConfigFromYAML parses and validates YAML config data.
func LoadConfigFromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.StackName == "" {
		c.StackName = "quick-suite-gateway"
	}
	if c.Description == "" {
		c.Description = "AgentCore gateway tool suite"
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.ProjectName == "" {
		c.ProjectName = "quick-suite"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}

	for _, lc := range c.lambdaConfigs() {
		if lc.MemoryMB == 0 {
			lc.MemoryMB = 512
		}
		if lc.TimeoutSeconds == 0 {
			lc.TimeoutSeconds = 300
		}
	}
}

// Validate checks the configuration for deployable completeness.
func (c *Config) Validate() error {
	enabled := c.lambdaConfigs()
	if len(enabled) == 0 {
		return fmt.Errorf("config: at least one tool must be configured")
	}
	for name, lc := range enabled {
		if lc.AssetDir == "" {
			return fmt.Errorf("config: tools.%s.assetDir is required", name)
		}
	}
	if rs := c.Tools.Redshift; rs != nil {
		if rs.Database == "" {
			return fmt.Errorf("config: tools.redshift.database is required")
		}
		if rs.ClusterIdentifier == "" && rs.WorkgroupName == "" {
			return fmt.Errorf("config: tools.redshift needs clusterIdentifier or workgroupName")
		}
		if rs.ClusterIdentifier != "" && rs.DBUser == "" {
			return fmt.Errorf("config: tools.redshift.dbUser is required with clusterIdentifier")
		}
	}
	return nil
}

// lambdaConfigs returns the Lambda knobs of every enabled tool, keyed by the
// YAML section name.
func (c *Config) lambdaConfigs() map[string]*LambdaConfig {
	out := make(map[string]*LambdaConfig)
	if t := c.Tools.S3CRUD; t != nil {
		out["s3crud"] = &t.LambdaConfig
	}
	if t := c.Tools.KB; t != nil {
		out["kb"] = &t.LambdaConfig
	}
	if t := c.Tools.Redshift; t != nil {
		out["redshift"] = &t.LambdaConfig
	}
	if t := c.Tools.DataQuery; t != nil {
		out["dataQuery"] = &t.LambdaConfig
	}
	if t := c.Tools.Actuarial; t != nil {
		out["actuarial"] = &t.LambdaConfig
	}
	return out
}
