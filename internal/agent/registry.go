// Package agent implements the conversational core from spec.md §4.7: the
// bounded tool-calling loop, the tool registry exposed to the ToolCompleter,
// response sanitization, and the proactive message/digest generators the
// Scheduler drives.
package agent

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// ToolHandler executes one tool call and returns its result text.
type ToolHandler func(ctx context.Context, userID string, args map[string]interface{}) (string, error)

type registeredTool struct {
	def     ports.ToolDefinition
	handler ToolHandler
}

// Registry is the tool registry the core exposes to the ToolCompleter
// (spec.md §4.7 "Tool registry").
type Registry struct {
	tools map[string]registeredTool
	order []string
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool. Re-registering a name overwrites its handler but
// keeps its original position in Definitions.
func (r *Registry) Register(def ports.ToolDefinition, handler ToolHandler) {
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
}

// Definitions returns the schemas offered to the ToolCompleter, in
// registration order.
func (r *Registry) Definitions() []ports.ToolDefinition {
	out := make([]ports.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// Execute runs the named tool. An unknown tool name is itself returned as
// an error result, not a panic, since the caller came from an LLM.
func (r *Registry) Execute(ctx context.Context, userID, name string, args map[string]interface{}) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("agent: unknown tool %q", name)
	}
	return t.handler(ctx, userID, args)
}
