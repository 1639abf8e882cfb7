package redshift

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"
	redshifttypes "github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

type fakeRedshift struct {
	databases []string
	schemas   []string
	tables    []redshifttypes.TableMember

	// statuses is consumed one per DescribeStatement call; the last entry
	// repeats once exhausted.
	statuses     []redshifttypes.StatusString
	statementErr string
	hasResultSet bool
	resultRows   int64
	columns      []redshifttypes.ColumnMetadata
	records      [][]redshifttypes.Field

	lastExecute  *redshiftdata.ExecuteStatementInput
	lastList     *redshiftdata.ListTablesInput
	describeCall int
}

func (f *fakeRedshift) ListDatabases(_ context.Context, _ *redshiftdata.ListDatabasesInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ListDatabasesOutput, error) {
	return &redshiftdata.ListDatabasesOutput{Databases: f.databases}, nil
}

func (f *fakeRedshift) ListSchemas(_ context.Context, _ *redshiftdata.ListSchemasInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ListSchemasOutput, error) {
	return &redshiftdata.ListSchemasOutput{Schemas: f.schemas}, nil
}

func (f *fakeRedshift) ListTables(_ context.Context, in *redshiftdata.ListTablesInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ListTablesOutput, error) {
	f.lastList = in
	return &redshiftdata.ListTablesOutput{Tables: f.tables}, nil
}

func (f *fakeRedshift) ExecuteStatement(_ context.Context, in *redshiftdata.ExecuteStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error) {
	f.lastExecute = in
	return &redshiftdata.ExecuteStatementOutput{Id: aws.String("stmt-1")}, nil
}

func (f *fakeRedshift) DescribeStatement(_ context.Context, _ *redshiftdata.DescribeStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error) {
	idx := f.describeCall
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.describeCall++
	out := &redshiftdata.DescribeStatementOutput{
		Status:       f.statuses[idx],
		HasResultSet: aws.Bool(f.hasResultSet),
		ResultRows:   f.resultRows,
	}
	if f.statementErr != "" {
		out.Error = aws.String(f.statementErr)
	}
	return out, nil
}

func (f *fakeRedshift) GetStatementResult(_ context.Context, _ *redshiftdata.GetStatementResultInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.GetStatementResultOutput, error) {
	return &redshiftdata.GetStatementResultOutput{
		ColumnMetadata: f.columns,
		Records:        f.records,
	}, nil
}

func provisionedTarget() Target {
	return Target{ClusterIdentifier: "main-cluster", Database: "analytics", DBUser: "awsuser"}
}

func newTestService(f *fakeRedshift, target Target) *Service {
	return NewService(f, target, WithPolling(time.Millisecond, 50*time.Millisecond))
}

func TestListDatabases(t *testing.T) {
	f := &fakeRedshift{databases: []string{"analytics", "dev"}}
	svc := newTestService(f, provisionedTarget())

	databases, err := svc.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics", "dev"}, databases)
}

func TestListTablesPassesTarget(t *testing.T) {
	f := &fakeRedshift{tables: []redshifttypes.TableMember{
		{Name: aws.String("claims"), Schema: aws.String("public"), Type: aws.String("TABLE")},
	}}
	svc := newTestService(f, provisionedTarget())

	tables, err := svc.ListTables(context.Background(), "", "public")
	require.NoError(t, err)
	assert.Equal(t, []TableInfo{{Name: "claims", Schema: "public", Type: "TABLE"}}, tables)

	assert.Equal(t, "analytics", aws.ToString(f.lastList.Database))
	assert.Equal(t, "main-cluster", aws.ToString(f.lastList.ClusterIdentifier))
	assert.Equal(t, "awsuser", aws.ToString(f.lastList.DbUser))
	assert.Nil(t, f.lastList.WorkgroupName)
	assert.Equal(t, "public", aws.ToString(f.lastList.SchemaPattern))
}

func TestExecuteQueryServerlessTarget(t *testing.T) {
	f := &fakeRedshift{statuses: []redshifttypes.StatusString{redshifttypes.StatusStringFinished}}
	svc := newTestService(f, Target{Database: "analytics", WorkgroupName: "default-wg"})

	_, err := svc.ExecuteQuery(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Nil(t, f.lastExecute.ClusterIdentifier)
	assert.Nil(t, f.lastExecute.DbUser)
	assert.Equal(t, "default-wg", aws.ToString(f.lastExecute.WorkgroupName))
}

func TestExecuteQueryDecodesRows(t *testing.T) {
	f := &fakeRedshift{
		statuses: []redshifttypes.StatusString{
			redshifttypes.StatusStringStarted,
			redshifttypes.StatusStringFinished,
		},
		hasResultSet: true,
		columns: []redshifttypes.ColumnMetadata{
			{Name: aws.String("claim_id")},
			{Name: aws.String("paid_amount")},
			{Name: aws.String("open")},
			{Name: aws.String("note")},
		},
		records: [][]redshifttypes.Field{
			{
				&redshifttypes.FieldMemberStringValue{Value: "C1"},
				&redshifttypes.FieldMemberDoubleValue{Value: 1250.75},
				&redshifttypes.FieldMemberBooleanValue{Value: true},
				&redshifttypes.FieldMemberIsNull{Value: true},
			},
			{
				&redshifttypes.FieldMemberStringValue{Value: "C2"},
				&redshifttypes.FieldMemberLongValue{Value: 900},
				&redshifttypes.FieldMemberBooleanValue{Value: false},
				&redshifttypes.FieldMemberStringValue{Value: "subrogation"},
			},
		},
	}
	svc := newTestService(f, provisionedTarget())

	out, err := svc.ExecuteQuery(context.Background(), "SELECT * FROM claims")
	require.NoError(t, err)

	assert.Equal(t, []string{"claim_id", "paid_amount", "open", "note"}, out.Columns)
	assert.Equal(t, int64(2), out.RowCount)
	assert.Equal(t, map[string]any{
		"claim_id": "C1", "paid_amount": 1250.75, "open": true, "note": nil,
	}, out.Rows[0])
	assert.Equal(t, map[string]any{
		"claim_id": "C2", "paid_amount": int64(900), "open": false, "note": "subrogation",
	}, out.Rows[1])
}

func TestExecuteQueryNoResultSet(t *testing.T) {
	f := &fakeRedshift{
		statuses:   []redshifttypes.StatusString{redshifttypes.StatusStringFinished},
		resultRows: 5,
	}
	svc := newTestService(f, provisionedTarget())

	out, err := svc.ExecuteQuery(context.Background(), "UPDATE claims SET open = false")
	require.NoError(t, err)
	assert.Empty(t, out.Rows)
	assert.Equal(t, int64(5), out.RowCount)
}

func TestExecuteQueryFailure(t *testing.T) {
	f := &fakeRedshift{
		statuses:     []redshifttypes.StatusString{redshifttypes.StatusStringFailed},
		statementErr: `relation "nope" does not exist`,
	}
	svc := newTestService(f, provisionedTarget())

	_, err := svc.ExecuteQuery(context.Background(), "SELECT * FROM nope")
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeQueryFailed, toolErr.Code)
	assert.Contains(t, toolErr.Message, "does not exist")
	assert.Equal(t, "stmt-1", toolErr.Details["statement_id"])
}

func TestExecuteQueryTimesOut(t *testing.T) {
	f := &fakeRedshift{statuses: []redshifttypes.StatusString{redshifttypes.StatusStringStarted}}
	svc := newTestService(f, provisionedTarget())

	_, err := svc.ExecuteQuery(context.Background(), "SELECT pg_sleep(600)")
	assert.Equal(t, gateway.CodeQueryTimeout, gateway.AsToolError(err).Code)
}

func TestExecuteQueryEmptySQL(t *testing.T) {
	svc := newTestService(&fakeRedshift{}, provisionedTarget())

	_, err := svc.ExecuteQuery(context.Background(), "")
	assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)
}

func TestExecuteQueryRejectsUnsafeSQL(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "stacked statements", sql: "SELECT 1; DROP TABLE claims"},
		{name: "line comment", sql: "SELECT 1 -- hidden"},
		{name: "block comment", sql: "SELECT /* hidden */ 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRedshift{}
			svc := newTestService(f, provisionedTarget())

			_, err := svc.ExecuteQuery(context.Background(), tt.sql)
			assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)
			assert.Nil(t, f.lastExecute)
		})
	}
}

func TestExecuteQueryAllowsTrailingSemicolon(t *testing.T) {
	f := &fakeRedshift{statuses: []redshifttypes.StatusString{redshifttypes.StatusStringFinished}}
	svc := newTestService(f, provisionedTarget())

	_, err := svc.ExecuteQuery(context.Background(), "SELECT 1;")
	require.NoError(t, err)
}

func TestRegisterExposesTools(t *testing.T) {
	f := &fakeRedshift{databases: []string{"analytics"}}
	registry := gateway.NewToolRegistry()
	Register(registry, newTestService(f, provisionedTarget()))

	names := make([]string, 0, 4)
	for _, def := range registry.List() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{ToolListDatabases, ToolListSchemas, ToolListTables, ToolExecuteQuery}, names)

	data, err := registry.Call(context.Background(), ToolListDatabases, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"databases": []string{"analytics"}}, data)
}
