package actuarial

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/session"
)

type toolFixture struct {
	registry *gateway.ToolRegistry
	store    *session.MemoryStore
	s3       *fakeS3
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	f := &toolFixture{
		registry: gateway.NewToolRegistry(),
		store:    session.NewMemoryStore(),
		s3:       &fakeS3{objects: map[string][]byte{}},
	}
	svc := NewService(f.s3, f.store,
		WithClock(gateway.FixedClock{Time: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}),
		WithRand(rand.New(rand.NewSource(42))),
	)
	Register(f.registry, svc)
	return f
}

func (f *toolFixture) seedTriangleSession(t *testing.T, sessionID string) {
	t.Helper()
	seedSession(t, f.store, sessionID)
	lines := make([]string, 0, len(triangleClaims()))
	for _, claim := range triangleClaims() {
		raw, err := json.Marshal(claim)
		require.NoError(t, err)
		lines = append(lines, string(raw))
	}
	f.s3.objects["unload/"+sessionID+"/0000_part_00.gz"] = gzipLines(t, lines...)
}

func TestRegisterAdvertisesTools(t *testing.T) {
	f := newToolFixture(t)

	names := make([]string, 0, 6)
	for _, def := range f.registry.List() {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.True(t, json.Valid(def.InputSchema), "schema for %s", def.Name)
	}
	assert.Equal(t, []string{
		ToolScoreFraudRisk, ToolDetectLitigation, ToolAnalyzeRiskFactors,
		ToolBuildLossTriangles, ToolCalculateReserves, ToolMonitorDevelopment,
	}, names)
}

func TestToolsAcceptInlineData(t *testing.T) {
	f := newToolFixture(t)
	args := json.RawMessage(`{"data":[{"claimnumber":"CLM-1","paidtotal":5000,"totalincurred":10000}]}`)

	result, err := f.registry.Call(context.Background(), ToolScoreFraudRisk, args)
	require.NoError(t, err)
	report := result.(*FraudReport)
	assert.Equal(t, 1, report.Summary.TotalClaims)
	// Round paid amount only.
	assert.InDelta(t, 0.2, report.FraudScores[0].FraudProbability, 1e-9)

	result, err = f.registry.Call(context.Background(), ToolMonitorDevelopment, args)
	require.NoError(t, err)
	monitoring := result.(*MonitoringReport)
	assert.NotEmpty(t, monitoring.KPIs)
}

func TestToolsLoadSessionData(t *testing.T) {
	f := newToolFixture(t)
	f.seedTriangleSession(t, "sess-1")

	result, err := f.registry.Call(context.Background(), ToolAnalyzeRiskFactors,
		json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)
	assert.Equal(t, 4, result.(*RiskReport).Summary.TotalClaims)
}

func TestToolsRequireSessionOrData(t *testing.T) {
	f := newToolFixture(t)

	_, err := f.registry.Call(context.Background(), ToolDetectLitigation, nil)
	assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)

	_, err = f.registry.Call(context.Background(), ToolDetectLitigation,
		json.RawMessage(`{"session_id":"unknown"}`))
	assert.Equal(t, gateway.CodeResourceNotFound, gateway.AsToolError(err).Code)

	_, err = f.registry.Call(context.Background(), ToolDetectLitigation, json.RawMessage(`[1]`))
	assert.Equal(t, gateway.CodeValidationError, gateway.AsToolError(err).Code)
}

func TestToolConfigOverride(t *testing.T) {
	f := newToolFixture(t)
	args := json.RawMessage(`{
		"data":[{"claimnumber":"CLM-1","paidtotal":5000,"totalincurred":10000}],
		"fraud_config":{"score_weights":{"amount_anomaly":0.5}}
	}`)

	result, err := f.registry.Call(context.Background(), ToolScoreFraudRisk, args)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.(*FraudReport).FraudScores[0].FraudProbability, 1e-9)
}

func TestToolConfigOverrideRejectsNonObject(t *testing.T) {
	f := newToolFixture(t)
	args := json.RawMessage(`{"data":[{"claimnumber":"C"}],"fraud_config":[1,2]}`)

	_, err := f.registry.Call(context.Background(), ToolScoreFraudRisk, args)
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeValidationError, toolErr.Code)
	assert.Contains(t, toolErr.Message, "fraud_config")
}

func TestBuildLossTrianglesToolPersists(t *testing.T) {
	f := newToolFixture(t)
	f.seedTriangleSession(t, "sess-1")

	result, err := f.registry.Call(context.Background(), ToolBuildLossTriangles,
		json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)

	envelope := result.(triangleResult)
	assert.Equal(t, "triangle_result", envelope.EventType)
	assert.Equal(t, "sess-1", envelope.SessionID)
	assert.InDelta(t, 1500, envelope.Incurred.Data[2021][1], 1e-9)

	stored, err := f.store.GetTriangles(context.Background(), "sess-1")
	require.NoError(t, err)
	var set TriangleSet
	require.NoError(t, json.Unmarshal(stored, &set))
	assert.InDelta(t, 1500, set.Incurred.Data[2021][1], 1e-9)
}

func TestCalculateReservesReusesStoredTriangles(t *testing.T) {
	f := newToolFixture(t)
	// Only the persisted triangles exist; the session has no query result,
	// so any attempt to reload claims would fail.
	raw, err := json.Marshal(reservingTriangles())
	require.NoError(t, err)
	require.NoError(t, f.store.SaveTriangles(context.Background(), "sess-1", raw))

	result, err := f.registry.Call(context.Background(), ToolCalculateReserves,
		json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)
	assert.InDelta(t, 1210, result.(*ReservesResult).Summary.TotalIBNRChainLadder, 1e-6)
	assert.Zero(t, f.s3.getCalls)
}

func TestCalculateReservesBuildsAndPersists(t *testing.T) {
	f := newToolFixture(t)
	f.seedTriangleSession(t, "sess-1")

	_, err := f.registry.Call(context.Background(), ToolCalculateReserves,
		json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.s3.getCalls)

	// A second call reuses the persisted triangles.
	_, err = f.registry.Call(context.Background(), ToolCalculateReserves,
		json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.s3.getCalls)
}

func TestCalculateReservesCorruptStoredTriangles(t *testing.T) {
	f := newToolFixture(t)
	require.NoError(t, f.store.SaveTriangles(context.Background(), "sess-1", json.RawMessage(`"garbage`)))

	_, err := f.registry.Call(context.Background(), ToolCalculateReserves,
		json.RawMessage(`{"session_id":"sess-1"}`))
	toolErr := gateway.AsToolError(err)
	assert.Equal(t, gateway.CodeInternalError, toolErr.Code)
	assert.Contains(t, toolErr.Message, "corrupt")
}
