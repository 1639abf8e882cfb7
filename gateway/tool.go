package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolDef describes a tool exposed through a gateway target. InputSchema is
// the JSON Schema the gateway advertises to agents; it is also rendered into
// the CDK target definition, so it must stay valid standalone JSON.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolHandler implements one tool. The returned value becomes the envelope's
// data field; errors should be ToolError values for stable codes.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

type registeredTool struct {
	def     ToolDef
	handler ToolHandler
}

// ToolRegistry manages the tools a Lambda serves.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools []registeredTool
	index map[string]int
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{index: make(map[string]int)}
}

// Register adds a tool. Registering the same name twice is a programming
// error and fails loudly.
func (r *ToolRegistry) Register(def ToolDef, handler ToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.index[def.Name] = len(r.tools)
	r.tools = append(r.tools, registeredTool{def: def, handler: handler})
	return nil
}

// MustRegister panics on registration failure; used during init wiring.
func (r *ToolRegistry) MustRegister(def ToolDef, handler ToolHandler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// List returns all tool definitions in registration order.
func (r *ToolRegistry) List() []ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// Call invokes the named tool.
func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	idx, ok := r.index[name]
	if !ok {
		r.mu.RUnlock()
		return nil, NewToolError(CodeToolNotFound, "unknown tool: "+name)
	}
	handler := r.tools[idx].handler
	r.mu.RUnlock()

	return handler(ctx, args)
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[name]
	return ok
}
