// Package dataquery implements the data discovery and SQL execution tools:
// listing Glue catalog tables, describing schemas, and running Athena queries
// whose results are unloaded to S3 for downstream analysis.
package dataquery

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

const (
	// DefaultPollInterval and DefaultPollTimeout bound how long run_query
	// waits for Athena. 300 one-second polls matches the gateway's Lambda
	// timeout headroom.
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 5 * time.Minute

	// DefaultTableName is described when the caller does not name a table.
	DefaultTableName = "claims"
)

type glueAPI interface {
	GetDatabase(ctx context.Context, in *glue.GetDatabaseInput, opts ...func(*glue.Options)) (*glue.GetDatabaseOutput, error)
	GetTables(ctx context.Context, in *glue.GetTablesInput, opts ...func(*glue.Options)) (*glue.GetTablesOutput, error)
	GetTable(ctx context.Context, in *glue.GetTableInput, opts ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type athenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, opts ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, opts ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Service backs the data query tools.
type Service struct {
	glue     glueAPI
	athena   athenaAPI
	s3       s3API
	sessions session.Store

	database      string
	workgroup     string
	resultsBucket string
	defaultTable  string

	ids          gateway.IDGenerator
	clock        gateway.Clock
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Service)

func WithIDGenerator(ids gateway.IDGenerator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

func WithClock(clock gateway.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

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

func WithDefaultTable(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultTable = name
		}
	}
}

// Deps carries the AWS clients and session store the service needs.
type Deps struct {
	Glue     glueAPI
	Athena   athenaAPI
	S3       s3API
	Sessions session.Store
}

func NewService(deps Deps, database, workgroup, resultsBucket string, opts ...Option) *Service {
	s := &Service{
		glue:          deps.Glue,
		athena:        deps.Athena,
		s3:            deps.S3,
		sessions:      deps.Sessions,
		database:      database,
		workgroup:     workgroup,
		resultsBucket: resultsBucket,
		defaultTable:  DefaultTableName,
		ids:           gateway.NewULIDGenerator(),
		clock:         gateway.RealClock{},
		pollInterval:  DefaultPollInterval,
		pollTimeout:   DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TableSummary names a catalog table and its columns.
type TableSummary struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// ListTablesResult reports the catalog contents.
type ListTablesResult struct {
	Database string         `json:"database"`
	Tables   []TableSummary `json:"tables"`
	Message  string         `json:"message,omitempty"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment,omitempty"`
}

// DescribeTableResult reports a table schema.
type DescribeTableResult struct {
	TableName    string       `json:"table_name"`
	DatabaseName string       `json:"database_name"`
	Columns      []ColumnInfo `json:"columns"`
	Location     string       `json:"location,omitempty"`
	InputFormat  string       `json:"input_format,omitempty"`
	OutputFormat string       `json:"output_format,omitempty"`
}

// QueryResult reports a completed query. RowCount is estimated from the
// sample file times the file count, the same estimate the analysis tools
// refine when they load the full result set.
type QueryResult struct {
	EventType string   `json:"event_type"`
	SessionID string   `json:"session_id"`
	RowCount  int64    `json:"row_count"`
	Columns   []string `json:"columns"`
	Query     string   `json:"query"`
	Message   string   `json:"message"`
}

// ListTables enumerates the tables the Glue crawler has discovered.
func (s *Service) ListTables(ctx context.Context) (*ListTablesResult, error) {
	if _, err := s.glue.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(s.database)}); err != nil {
		return nil, &gateway.ToolError{
			Code:    gateway.CodeResourceNotFound,
			Message: fmt.Sprintf("database %q not found; the Glue database may not be created yet", s.database),
			Status:  404,
		}
	}

	tables, err := s.listCatalogTables(ctx)
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list tables")
	}

	result := &ListTablesResult{Database: s.database, Tables: make([]TableSummary, 0, len(tables))}
	for _, t := range tables {
		summary := TableSummary{Name: aws.ToString(t.Name)}
		if t.StorageDescriptor != nil {
			for _, col := range t.StorageDescriptor.Columns {
				summary.Columns = append(summary.Columns, aws.ToString(col.Name))
			}
		}
		result.Tables = append(result.Tables, summary)
	}
	if len(result.Tables) == 0 {
		result.Message = fmt.Sprintf("no tables found in database %q; run the Glue crawler to discover tables from S3 data", s.database)
	}
	return result, nil
}

// DescribeTable returns the schema of one table. An empty name describes the
// default table.
func (s *Service) DescribeTable(ctx context.Context, tableName string) (*DescribeTableResult, error) {
	if tableName == "" {
		tableName = s.defaultTable
	}

	if _, err := s.glue.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(s.database)}); err != nil {
		return nil, &gateway.ToolError{
			Code:    gateway.CodeResourceNotFound,
			Message: fmt.Sprintf("database %q not found", s.database),
			Status:  404,
		}
	}

	tables, err := s.listCatalogTables(ctx)
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list tables")
	}
	available := make([]string, 0, len(tables))
	found := false
	for _, t := range tables {
		name := aws.ToString(t.Name)
		available = append(available, name)
		if name == tableName {
			found = true
		}
	}
	if len(available) == 0 {
		return nil, &gateway.ToolError{
			Code:    gateway.CodeResourceNotFound,
			Message: fmt.Sprintf("no tables found in database %q; run the Glue crawler first", s.database),
			Status:  404,
		}
	}
	if !found {
		return nil, &gateway.ToolError{
			Code:    gateway.CodeResourceNotFound,
			Message: fmt.Sprintf("table %q not found in database %q; available tables: %s", tableName, s.database, strings.Join(available, ", ")),
			Status:  404,
		}
	}

	out, err := s.glue.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(s.database),
		Name:         aws.String(tableName),
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to describe table")
	}

	result := &DescribeTableResult{
		TableName:    tableName,
		DatabaseName: s.database,
	}
	if sd := out.Table.StorageDescriptor; sd != nil {
		for _, col := range sd.Columns {
			result.Columns = append(result.Columns, ColumnInfo{
				Name:    aws.ToString(col.Name),
				Type:    aws.ToString(col.Type),
				Comment: aws.ToString(col.Comment),
			})
		}
		result.Location = aws.ToString(sd.Location)
		result.InputFormat = aws.ToString(sd.InputFormat)
		result.OutputFormat = aws.ToString(sd.OutputFormat)
	}
	return result, nil
}

// RunQuery executes a SQL query through Athena UNLOAD and records where the
// result rows landed so later tools can load them by session ID.
func (s *Service) RunQuery(ctx context.Context, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if err := validateReadOnlyQuery(query); err != nil {
		return nil, err
	}

	sessionID := s.ids.NewID()
	outputPrefix := fmt.Sprintf("unload/%s/", sessionID)
	outputPath := fmt.Sprintf("s3://%s/%s", s.resultsBucket, outputPrefix)

	// Unload as gzipped JSON lines so the analysis tools can stream the
	// rows back without a columnar reader.
	unload := fmt.Sprintf("UNLOAD (%s)\nTO '%s'\nWITH (format = 'JSON', compression = 'GZIP')", query, outputPath)

	start, err := s.athena.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(unload),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(s.database),
		},
		WorkGroup: aws.String(s.workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(fmt.Sprintf("s3://%s/query-results/", s.resultsBucket)),
		},
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to start query execution")
	}

	executionID := aws.ToString(start.QueryExecutionId)
	if err := s.waitForQuery(ctx, executionID); err != nil {
		return nil, err
	}

	columns, rowCount, err := s.inspectResults(ctx, outputPrefix)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveQueryResult(ctx, session.QueryResult{
		SessionID: sessionID,
		S3Prefix:  outputPath,
		Columns:   columns,
		RowCount:  rowCount,
		Query:     query,
		CreatedAt: s.clock.Now().UTC(),
	}); err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to store session metadata")
	}

	return &QueryResult{
		EventType: "query_result",
		SessionID: sessionID,
		RowCount:  rowCount,
		Columns:   columns,
		Query:     query,
		Message:   fmt.Sprintf("Query executed successfully. %d rows available for analysis.", rowCount),
	}, nil
}

// validateReadOnlyQuery accepts only a single SELECT or WITH statement; the
// query runs embedded in an UNLOAD, so nothing else is valid there anyway.
func validateReadOnlyQuery(query string) error {
	if query == "" {
		return gateway.NewToolError(gateway.CodeValidationError, "query must not be empty")
	}
	if strings.Contains(query, ";") {
		return gateway.NewToolError(gateway.CodeValidationError, "only one query is allowed")
	}
	fields := strings.Fields(strings.ToUpper(query))
	if fields[0] != "SELECT" && fields[0] != "WITH" {
		return gateway.NewToolError(gateway.CodeValidationError, "only SELECT queries are supported")
	}
	return nil
}

func (s *Service) listCatalogTables(ctx context.Context) ([]gluetypes.Table, error) {
	var tables []gluetypes.Table
	var next *string
	for {
		out, err := s.glue.GetTables(ctx, &glue.GetTablesInput{
			DatabaseName: aws.String(s.database),
			NextToken:    next,
		})
		if err != nil {
			return nil, err
		}
		tables = append(tables, out.TableList...)
		if out.NextToken == nil {
			return tables, nil
		}
		next = out.NextToken
	}
}

func (s *Service) waitForQuery(ctx context.Context, executionID string) error {
	deadline := time.NewTimer(s.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		out, err := s.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(executionID),
		})
		if err != nil {
			return gateway.NewToolError(gateway.CodeQueryFailed, "failed to get query status")
		}

		var state athenatypes.QueryExecutionState
		var reason string
		if out.QueryExecution != nil && out.QueryExecution.Status != nil {
			state = out.QueryExecution.Status.State
			reason = aws.ToString(out.QueryExecution.Status.StateChangeReason)
		}

		switch state {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			if reason == "" {
				reason = "unknown error"
			}
			return gateway.NewToolError(gateway.CodeQueryFailed,
				fmt.Sprintf("query %s: %s", strings.ToLower(string(state)), reason)).
				WithDetail("query_execution_id", executionID)
		}

		select {
		case <-ctx.Done():
			return gateway.NewToolError(gateway.CodeQueryTimeout, "query cancelled")
		case <-deadline.C:
			return gateway.NewToolError(gateway.CodeQueryTimeout, "timed out waiting for query to complete").
				WithDetail("query_execution_id", executionID)
		case <-ticker.C:
		}
	}
}

// inspectResults samples the first unloaded file to discover columns and
// estimate the row count across all files.
func (s *Service) inspectResults(ctx context.Context, prefix string) ([]string, int64, error) {
	listed, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.resultsBucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list query result files")
	}

	var sampleKey string
	files := int64(0)
	for _, obj := range listed.Contents {
		if aws.ToInt64(obj.Size) == 0 {
			continue
		}
		files++
		if sampleKey == "" {
			sampleKey = aws.ToString(obj.Key)
		}
	}
	if sampleKey == "" {
		return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "query produced no data files")
	}

	obj, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.resultsBucket),
		Key:    aws.String(sampleKey),
	})
	if err != nil {
		return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "failed to read query result file")
	}
	defer obj.Body.Close()

	gz, err := gzip.NewReader(obj.Body)
	if err != nil {
		return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "query result file is not gzip encoded")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var columns []string
	sampleRows := int64(0)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if columns == nil {
			var row map[string]any
			if err := json.Unmarshal(line, &row); err != nil {
				return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "query result file is not valid JSON lines")
			}
			columns = make([]string, 0, len(row))
			for name := range row {
				columns = append(columns, name)
			}
			sort.Strings(columns)
		}
		sampleRows++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, gateway.NewToolError(gateway.CodeQueryFailed, "failed to scan query result file")
	}

	return columns, sampleRows * files, nil
}
