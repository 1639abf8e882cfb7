package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryRegisterAndCall(t *testing.T) {
	registry := NewToolRegistry()

	err := registry.Register(ToolDef{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(_ context.Context, args json.RawMessage) (any, error) {
		return string(args), nil
	})
	require.NoError(t, err)

	out, err := registry.Call(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	assert.True(t, registry.Has("echo"))
}

func TestToolRegistryDuplicateName(t *testing.T) {
	registry := NewToolRegistry()
	handler := func(_ context.Context, _ json.RawMessage) (any, error) { return nil, nil }

	require.NoError(t, registry.Register(ToolDef{Name: "dup"}, handler))
	assert.Error(t, registry.Register(ToolDef{Name: "dup"}, handler))
	assert.Panics(t, func() { registry.MustRegister(ToolDef{Name: "dup"}, handler) })
}

func TestToolRegistryUnknownTool(t *testing.T) {
	registry := NewToolRegistry()

	_, err := registry.Call(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, CodeToolNotFound, AsToolError(err).Code)
}

func TestToolRegistryListPreservesOrder(t *testing.T) {
	registry := NewToolRegistry()
	handler := func(_ context.Context, _ json.RawMessage) (any, error) { return nil, nil }

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, registry.Register(ToolDef{Name: name}, handler))
	}

	defs := registry.List()
	require.Len(t, defs, 3)
	assert.Equal(t, "c", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
	assert.Equal(t, "b", defs[2].Name)
}
