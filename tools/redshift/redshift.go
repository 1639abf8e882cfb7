// Package redshift implements the warehouse query tools over the Redshift
// Data API, working against either a provisioned cluster or a serverless
// workgroup.
package redshift

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 3 * time.Minute
)

type redshiftAPI interface {
	ListDatabases(ctx context.Context, in *redshiftdata.ListDatabasesInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.ListDatabasesOutput, error)
	ListSchemas(ctx context.Context, in *redshiftdata.ListSchemasInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.ListSchemasOutput, error)
	ListTables(ctx context.Context, in *redshiftdata.ListTablesInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.ListTablesOutput, error)
	ExecuteStatement(ctx context.Context, in *redshiftdata.ExecuteStatementInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error)
	DescribeStatement(ctx context.Context, in *redshiftdata.DescribeStatementInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error)
	GetStatementResult(ctx context.Context, in *redshiftdata.GetStatementResultInput, opts ...func(*redshiftdata.Options)) (*redshiftdata.GetStatementResultOutput, error)
}

// Target identifies the warehouse to query. Either ClusterIdentifier plus
// DBUser (provisioned) or WorkgroupName (serverless) must be set.
type Target struct {
	ClusterIdentifier string
	Database          string
	DBUser            string
	WorkgroupName     string
}

// Service backs the Redshift tools.
type Service struct {
	client redshiftAPI
	target Target

	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Service)

func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if timeout > 0 {
			s.pollTimeout = timeout
		}
	}
}

func NewService(client redshiftAPI, target Target, opts ...Option) *Service {
	s := &Service{
		client:       client,
		target:       target,
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TableInfo names one table in a schema.
type TableInfo struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Type   string `json:"type"`
}

// QueryOutput is the decoded result of an executed statement.
type QueryOutput struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int64            `json:"row_count"`
}

// ListDatabases lists databases visible to the configured target.
func (s *Service) ListDatabases(ctx context.Context) ([]string, error) {
	var databases []string
	var next *string
	for {
		out, err := s.client.ListDatabases(ctx, &redshiftdata.ListDatabasesInput{
			Database:          aws.String(s.target.Database),
			ClusterIdentifier: optional(s.target.ClusterIdentifier),
			DbUser:            optional(s.target.DBUser),
			WorkgroupName:     optional(s.target.WorkgroupName),
			NextToken:         next,
		})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list databases")
		}
		databases = append(databases, out.Databases...)
		if out.NextToken == nil {
			return databases, nil
		}
		next = out.NextToken
	}
}

// ListSchemas lists schemas in a database. An empty database uses the
// configured default.
func (s *Service) ListSchemas(ctx context.Context, database string) ([]string, error) {
	if database == "" {
		database = s.target.Database
	}
	var schemas []string
	var next *string
	for {
		out, err := s.client.ListSchemas(ctx, &redshiftdata.ListSchemasInput{
			Database:          aws.String(database),
			ClusterIdentifier: optional(s.target.ClusterIdentifier),
			DbUser:            optional(s.target.DBUser),
			WorkgroupName:     optional(s.target.WorkgroupName),
			NextToken:         next,
		})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list schemas")
		}
		schemas = append(schemas, out.Schemas...)
		if out.NextToken == nil {
			return schemas, nil
		}
		next = out.NextToken
	}
}

// ListTables lists tables, optionally restricted to one schema.
func (s *Service) ListTables(ctx context.Context, database, schema string) ([]TableInfo, error) {
	if database == "" {
		database = s.target.Database
	}
	var tables []TableInfo
	var next *string
	for {
		out, err := s.client.ListTables(ctx, &redshiftdata.ListTablesInput{
			Database:          aws.String(database),
			SchemaPattern:     optional(schema),
			ClusterIdentifier: optional(s.target.ClusterIdentifier),
			DbUser:            optional(s.target.DBUser),
			WorkgroupName:     optional(s.target.WorkgroupName),
			NextToken:         next,
		})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list tables")
		}
		for _, t := range out.Tables {
			tables = append(tables, TableInfo{
				Name:   aws.ToString(t.Name),
				Schema: aws.ToString(t.Schema),
				Type:   aws.ToString(t.Type),
			})
		}
		if out.NextToken == nil {
			return tables, nil
		}
		next = out.NextToken
	}
}

// ExecuteQuery runs a SQL statement and returns the decoded result set.
func (s *Service) ExecuteQuery(ctx context.Context, sql string) (*QueryOutput, error) {
	if err := validateSQL(sql); err != nil {
		return nil, err
	}

	started, err := s.client.ExecuteStatement(ctx, &redshiftdata.ExecuteStatementInput{
		Sql:               aws.String(sql),
		Database:          aws.String(s.target.Database),
		ClusterIdentifier: optional(s.target.ClusterIdentifier),
		DbUser:            optional(s.target.DBUser),
		WorkgroupName:     optional(s.target.WorkgroupName),
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to execute statement")
	}

	statementID := aws.ToString(started.Id)
	described, err := s.waitForStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}

	output := &QueryOutput{Rows: []map[string]any{}, RowCount: described.ResultRows}
	if !aws.ToBool(described.HasResultSet) {
		return output, nil
	}

	var next *string
	for {
		page, err := s.client.GetStatementResult(ctx, &redshiftdata.GetStatementResultInput{
			Id:        aws.String(statementID),
			NextToken: next,
		})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to fetch statement result")
		}
		if output.Columns == nil {
			output.Columns = make([]string, len(page.ColumnMetadata))
			for i, col := range page.ColumnMetadata {
				output.Columns[i] = aws.ToString(col.Name)
			}
		}
		for _, record := range page.Records {
			row := make(map[string]any, len(output.Columns))
			for i, field := range record {
				if i < len(output.Columns) {
					row[output.Columns[i]] = decodeField(field)
				}
			}
			output.Rows = append(output.Rows, row)
		}
		if page.NextToken == nil {
			break
		}
		next = page.NextToken
	}

	output.RowCount = int64(len(output.Rows))
	return output, nil
}

// validateSQL enforces the single-statement rule: one statement per call
// and no SQL comments.
func validateSQL(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return gateway.NewToolError(gateway.CodeValidationError, "sql must not be empty")
	}
	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") {
		return gateway.NewToolError(gateway.CodeValidationError, "sql comments are not allowed")
	}
	if i := strings.Index(trimmed, ";"); i >= 0 && strings.TrimSpace(trimmed[i+1:]) != "" {
		return gateway.NewToolError(gateway.CodeValidationError, "only one sql statement is allowed")
	}
	return nil
}

func (s *Service) waitForStatement(ctx context.Context, id string) (*redshiftdata.DescribeStatementOutput, error) {
	deadline := time.NewTimer(s.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		out, err := s.client.DescribeStatement(ctx, &redshiftdata.DescribeStatementInput{Id: aws.String(id)})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to describe statement")
		}

		switch out.Status {
		case redshifttypes.StatusStringFinished:
			return out, nil
		case redshifttypes.StatusStringFailed, redshifttypes.StatusStringAborted:
			reason := aws.ToString(out.Error)
			if reason == "" {
				reason = "unknown error"
			}
			return nil, gateway.NewToolError(gateway.CodeQueryFailed,
				fmt.Sprintf("statement %s: %s", out.Status, reason)).
				WithDetail("statement_id", id)
		}

		select {
		case <-ctx.Done():
			return nil, gateway.NewToolError(gateway.CodeQueryTimeout, "statement cancelled")
		case <-deadline.C:
			return nil, gateway.NewToolError(gateway.CodeQueryTimeout, "timed out waiting for statement to complete").
				WithDetail("statement_id", id)
		case <-ticker.C:
		}
	}
}

func decodeField(field redshifttypes.Field) any {
	switch v := field.(type) {
	case *redshifttypes.FieldMemberStringValue:
		return v.Value
	case *redshifttypes.FieldMemberLongValue:
		return v.Value
	case *redshifttypes.FieldMemberDoubleValue:
		return v.Value
	case *redshifttypes.FieldMemberBooleanValue:
		return v.Value
	case *redshifttypes.FieldMemberBlobValue:
		return v.Value
	case *redshifttypes.FieldMemberIsNull:
		return nil
	default:
		return nil
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return aws.String(v)
}
