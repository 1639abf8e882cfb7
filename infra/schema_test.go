package infra

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicksuite-labs/agentgateway/gateway"
	"github.com/quicksuite-labs/agentgateway/tools/actuarial"
	"github.com/quicksuite-labs/agentgateway/tools/dataquery"
	"github.com/quicksuite-labs/agentgateway/tools/kb"
	"github.com/quicksuite-labs/agentgateway/tools/redshift"
	"github.com/quicksuite-labs/agentgateway/tools/s3crud"
)

func TestRenderToolSchema(t *testing.T) {
	payload, err := renderToolSchema(func(r *gateway.ToolRegistry) {
		s3crud.Register(r, nil)
	})
	require.NoError(t, err)
	require.Len(t, payload, 4)

	first, ok := payload[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s3_create_object", first["name"])
	assert.NotEmpty(t, first["description"])

	schema, ok := first["inputSchema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
}

func TestRenderToolSchemaAllTargets(t *testing.T) {
	tests := []struct {
		name     string
		register registerFunc
		tools    int
	}{
		{"s3crud", func(r *gateway.ToolRegistry) { s3crud.Register(r, nil) }, 4},
		{"kb", func(r *gateway.ToolRegistry) { kb.Register(r, nil) }, 2},
		{"redshift", func(r *gateway.ToolRegistry) { redshift.Register(r, nil) }, 4},
		{"dataquery", func(r *gateway.ToolRegistry) { dataquery.Register(r, nil) }, 3},
		{"actuarial", func(r *gateway.ToolRegistry) { actuarial.Register(r, nil) }, 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := renderToolSchema(tc.register)
			require.NoError(t, err)
			assert.Len(t, payload, tc.tools)

			for _, item := range payload {
				entry, ok := item.(map[string]any)
				require.True(t, ok)
				assert.NotEmpty(t, entry["name"])
				schema, ok := entry["inputSchema"].(map[string]any)
				require.True(t, ok, "tool %v schema must be an object", entry["name"])
				assert.Equal(t, "object", schema["type"])
			}
		})
	}
}

func TestRenderToolSchemaInvalidSchema(t *testing.T) {
	_, err := renderToolSchema(func(r *gateway.ToolRegistry) {
		r.MustRegister(gateway.ToolDef{
			Name:        "broken_tool",
			InputSchema: json.RawMessage(`{"type":`),
		}, func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil })
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken_tool")
}
