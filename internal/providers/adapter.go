package providers

import (
	"context"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// TextAdapter exposes a Provider as ports.TextCompleter: plain-text
// completions with no tool schemas offered (summaries, digests, proactive
// message decisions).
type TextAdapter struct {
	provider Provider
	model    string
}

// NewTextAdapter wraps provider. model overrides the provider's default
// when non-empty.
func NewTextAdapter(provider Provider, model string) *TextAdapter {
	return &TextAdapter{provider: provider, model: model}
}

func (a *TextAdapter) resolvedModel() string {
	if a.model != "" {
		return a.model
	}
	return a.provider.DefaultModel()
}

// Complete implements ports.TextCompleter.
func (a *TextAdapter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	resp, err := a.provider.Chat(ctx, ChatRequest{
		Messages: toProviderMessages(req.System, req.Messages),
		Model:    a.resolvedModel(),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ToolAdapter exposes a Provider as ports.ToolCompleter: offers tool
// schemas and surfaces any tool calls the model made, driving the agent's
// bounded tool-calling loop.
type ToolAdapter struct {
	provider Provider
	model    string
}

// NewToolAdapter wraps provider. model overrides the provider's default
// when non-empty.
func NewToolAdapter(provider Provider, model string) *ToolAdapter {
	return &ToolAdapter{provider: provider, model: model}
}

func (a *ToolAdapter) resolvedModel() string {
	if a.model != "" {
		return a.model
	}
	return a.provider.DefaultModel()
}

// Complete implements ports.ToolCompleter.
func (a *ToolAdapter) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	resp, err := a.provider.Chat(ctx, ChatRequest{
		Messages: toProviderMessages(req.System, req.Messages),
		Tools:    toProviderTools(req.Tools),
		Model:    a.resolvedModel(),
	})
	if err != nil {
		return nil, err
	}
	return &ports.CompletionResponse{
		Content:   resp.Content,
		ToolCalls: toPortsToolCalls(resp.ToolCalls),
	}, nil
}

func toProviderMessages(system string, msgs []ports.Message) []Message {
	out := make([]Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, Message{Role: "system", Content: system})
	}
	for _, m := range msgs {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func toProviderTools(defs []ports.ToolDefinition) []ToolDefinition {
	out := make([]ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = ToolDefinition{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return out
}

func toPortsToolCalls(calls []ToolCall) []ports.ToolCall {
	out := make([]ports.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ports.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return out
}
