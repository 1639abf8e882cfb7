package infra

import (
	"encoding/json"
	"fmt"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// registerFunc populates a registry with a tool package's definitions. The
// handlers are never invoked during synthesis, so packages may be registered
// with a nil service.
type registerFunc func(*gateway.ToolRegistry)

// renderToolSchema turns a tool package's definitions into the inline MCP
// tool schema payload carried by a gateway target. The schemas deployed here
// are the exact ones each Lambda advertises at runtime, so the gateway and
// the dispatcher can never drift apart.
func renderToolSchema(register registerFunc) ([]any, error) {
	registry := gateway.NewToolRegistry()
	register(registry)

	defs := registry.List()
	payload := make([]any, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
		}
		payload = append(payload, map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"inputSchema": schema,
		})
	}
	return payload, nil
}

// mustRenderToolSchema panics on invalid schemas; definitions are static, so
// a failure here is a programming error caught at synth time.
func mustRenderToolSchema(register registerFunc) []any {
	payload, err := renderToolSchema(register)
	if err != nil {
		panic(err)
	}
	return payload
}
