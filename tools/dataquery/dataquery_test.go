package dataquery

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

type fakeGlue struct {
	databases map[string]bool
	tables    []gluetypes.Table
}

func (f *fakeGlue) GetDatabase(_ context.Context, in *glue.GetDatabaseInput, _ ...func(*glue.Options)) (*glue.GetDatabaseOutput, error) {
	if !f.databases[aws.ToString(in.Name)] {
		return nil, &gluetypes.EntityNotFoundException{}
	}
	return &glue.GetDatabaseOutput{}, nil
}

func (f *fakeGlue) GetTables(_ context.Context, _ *glue.GetTablesInput, _ ...func(*glue.Options)) (*glue.GetTablesOutput, error) {
	return &glue.GetTablesOutput{TableList: f.tables}, nil
}

func (f *fakeGlue) GetTable(_ context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	for i := range f.tables {
		if aws.ToString(f.tables[i].Name) == aws.ToString(in.Name) {
			return &glue.GetTableOutput{Table: &f.tables[i]}, nil
		}
	}
	return nil, &gluetypes.EntityNotFoundException{}
}

type fakeAthena struct {
	// states is consumed one per GetQueryExecution call; the last entry
	// repeats once exhausted.
	states  []athenatypes.QueryExecutionState
	reason  string
	started []string
	calls   int
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.started = append(f.started, aws.ToString(in.QueryString))
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	idx := f.calls
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	f.calls++
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athenatypes.QueryExecution{
			Status: &athenatypes.QueryExecutionStatus{
				State:             f.states[idx],
				StateChangeReason: aws.String(f.reason),
			},
		},
	}, nil
}

type fakeResultsS3 struct {
	objects map[string][]byte
}

func (f *fakeResultsS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	// S3 returns keys in lexicographic order.
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, key := range keys {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(f.objects[key]))),
		})
	}
	return out, nil
}

func (f *fakeResultsS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

type stubIDs struct{ id string }

func (s stubIDs) NewID() string { return s.id }

func gzipLines(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		_, err := gz.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func claimsTable() gluetypes.Table {
	return gluetypes.Table{
		Name: aws.String("claims"),
		StorageDescriptor: &gluetypes.StorageDescriptor{
			Columns: []gluetypes.Column{
				{Name: aws.String("claim_id"), Type: aws.String("string")},
				{Name: aws.String("paid_amount"), Type: aws.String("double"), Comment: aws.String("cumulative paid")},
			},
			Location:     aws.String("s3://claims-data/claims/"),
			InputFormat:  aws.String("org.apache.hadoop.mapred.TextInputFormat"),
			OutputFormat: aws.String("org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat"),
		},
	}
}

func newTestService(t *testing.T, g *fakeGlue, a *fakeAthena, store s3API, sessions session.Store, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithIDGenerator(stubIDs{id: "01jsession"}),
		WithPolling(time.Millisecond, 50*time.Millisecond),
	}
	return NewService(Deps{Glue: g, Athena: a, S3: store, Sessions: sessions},
		"claims_db", "primary", "results-bucket", append(base, opts...)...)
}

func TestListTables(t *testing.T) {
	g := &fakeGlue{databases: map[string]bool{"claims_db": true}, tables: []gluetypes.Table{claimsTable()}}
	svc := newTestService(t, g, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	result, err := svc.ListTables(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "claims_db", result.Database)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "claims", result.Tables[0].Name)
	assert.Equal(t, []string{"claim_id", "paid_amount"}, result.Tables[0].Columns)
	assert.Empty(t, result.Message)
}

func TestListTablesMissingDatabase(t *testing.T) {
	svc := newTestService(t, &fakeGlue{databases: map[string]bool{}}, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	_, err := svc.ListTables(context.Background())
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeResourceNotFound, toolErr.Code)
	assert.Contains(t, toolErr.Message, "claims_db")
}

func TestListTablesEmptyCatalogSuggestsCrawler(t *testing.T) {
	g := &fakeGlue{databases: map[string]bool{"claims_db": true}}
	svc := newTestService(t, g, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	result, err := svc.ListTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Tables)
	assert.Contains(t, result.Message, "crawler")
}

func TestDescribeTableDefault(t *testing.T) {
	g := &fakeGlue{databases: map[string]bool{"claims_db": true}, tables: []gluetypes.Table{claimsTable()}}
	svc := newTestService(t, g, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	result, err := svc.DescribeTable(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "claims", result.TableName)
	require.Len(t, result.Columns, 2)
	assert.Equal(t, ColumnInfo{Name: "paid_amount", Type: "double", Comment: "cumulative paid"}, result.Columns[1])
	assert.Equal(t, "s3://claims-data/claims/", result.Location)
}

func TestDescribeTableUnknownListsAvailable(t *testing.T) {
	g := &fakeGlue{databases: map[string]bool{"claims_db": true}, tables: []gluetypes.Table{claimsTable()}}
	svc := newTestService(t, g, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	_, err := svc.DescribeTable(context.Background(), "policies")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeResourceNotFound, toolErr.Code)
	assert.Contains(t, toolErr.Message, "available tables: claims")
}

func TestRunQueryUnloadsAndStoresSession(t *testing.T) {
	a := &fakeAthena{states: []athenatypes.QueryExecutionState{
		athenatypes.QueryExecutionStateQueued,
		athenatypes.QueryExecutionStateRunning,
		athenatypes.QueryExecutionStateSucceeded,
	}}
	store := &fakeResultsS3{objects: map[string][]byte{
		"unload/01jsession/part-0.gz": gzipLines(t,
			`{"claim_id":"C1","paid_amount":100.5}`,
			`{"claim_id":"C2","paid_amount":200}`,
			`{"claim_id":"C3","paid_amount":50}`,
		),
		"unload/01jsession/part-1.gz": gzipLines(t, `{"claim_id":"C4","paid_amount":75}`),
	}}
	sessions := session.NewMemoryStore()
	svc := newTestService(t, &fakeGlue{}, a, store, sessions)

	result, err := svc.RunQuery(context.Background(), "SELECT claim_id, paid_amount FROM claims")
	require.NoError(t, err)

	assert.Equal(t, "query_result", result.EventType)
	assert.Equal(t, "01jsession", result.SessionID)
	assert.Equal(t, []string{"claim_id", "paid_amount"}, result.Columns)
	// Sample rows (3) times non-empty files (2).
	assert.Equal(t, int64(6), result.RowCount)

	require.Len(t, a.started, 1)
	assert.Contains(t, a.started[0], "UNLOAD (SELECT claim_id, paid_amount FROM claims)")
	assert.Contains(t, a.started[0], "TO 's3://results-bucket/unload/01jsession/'")
	assert.Contains(t, a.started[0], "format = 'JSON', compression = 'GZIP'")

	saved, err := sessions.GetQueryResult(context.Background(), "01jsession")
	require.NoError(t, err)
	assert.Equal(t, "s3://results-bucket/unload/01jsession/", saved.S3Prefix)
	assert.Equal(t, int64(6), saved.RowCount)
	assert.Equal(t, "SELECT claim_id, paid_amount FROM claims", saved.Query)
}

func TestRunQueryEmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeGlue{}, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore())

	_, err := svc.RunQuery(context.Background(), "   ")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeValidationError, toolErr.Code)
}

func TestRunQueryRejectsNonSelect(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "ddl", query: "DROP TABLE claims"},
		{name: "dml", query: "INSERT INTO claims VALUES (1)"},
		{name: "stacked statements", query: "SELECT 1; DROP TABLE claims"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAthena{}
			svc := newTestService(t, &fakeGlue{}, a, &fakeResultsS3{}, session.NewMemoryStore())

			_, err := svc.RunQuery(context.Background(), tt.query)
			assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)
			assert.Empty(t, a.started)
		})
	}
}

func TestRunQueryAllowsCTE(t *testing.T) {
	a := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded}}
	store := &fakeResultsS3{objects: map[string][]byte{
		"unload/01jsession/part-0.gz": gzipLines(t, `{"n":1}`),
	}}
	svc := newTestService(t, &fakeGlue{}, a, store, session.NewMemoryStore())

	_, err := svc.RunQuery(context.Background(), "WITH c AS (SELECT 1 AS n) SELECT n FROM c")
	require.NoError(t, err)
}

func TestRunQueryFailedExecution(t *testing.T) {
	a := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed},
		reason: "SYNTAX_ERROR: line 1",
	}
	svc := newTestService(t, &fakeGlue{}, a, &fakeResultsS3{}, session.NewMemoryStore())

	_, err := svc.RunQuery(context.Background(), "SELECT nope")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeQueryFailed, toolErr.Code)
	assert.Contains(t, toolErr.Message, "SYNTAX_ERROR")
	assert.Equal(t, "exec-1", toolErr.Details["query_execution_id"])
}

func TestRunQueryTimesOut(t *testing.T) {
	a := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}}
	svc := newTestService(t, &fakeGlue{}, a, &fakeResultsS3{}, session.NewMemoryStore())

	_, err := svc.RunQuery(context.Background(), "SELECT slow")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeQueryTimeout, toolErr.Code)
}

func TestRunQueryNoDataFiles(t *testing.T) {
	a := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded}}
	store := &fakeResultsS3{objects: map[string][]byte{
		// Zero-byte marker only.
		"unload/01jsession/_SUCCESS": {},
	}}
	svc := newTestService(t, &fakeGlue{}, a, store, session.NewMemoryStore())

	_, err := svc.RunQuery(context.Background(), "SELECT claim_id FROM claims WHERE 1=0")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeQueryFailed, toolErr.Code)
	assert.Contains(t, toolErr.Message, "no data files")
}

func TestRegisterExposesTools(t *testing.T) {
	g := &fakeGlue{databases: map[string]bool{"claims_db": true}, tables: []gluetypes.Table{claimsTable()}}
	registry := gateway.NewToolRegistry()
	Register(registry, newTestService(t, g, &fakeAthena{}, &fakeResultsS3{}, session.NewMemoryStore()))

	names := make([]string, 0, 3)
	for _, def := range registry.List() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{ToolListTables, ToolDescribeTable, ToolRunQuery}, names)

	data, err := registry.Call(context.Background(), ToolListTables, nil)
	require.NoError(t, err)
	listed, ok := data.(*ListTablesResult)
	require.True(t, ok)
	assert.Len(t, listed.Tables, 1)
}
