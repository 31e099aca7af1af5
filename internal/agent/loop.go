package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

const (
	defaultMaxToolRounds  = 7
	noRelevantKnowledge   = "no relevant knowledge found"
	recentSummaryCount    = 3
	ragPrefetchLimit      = 3
)

// defaultPersona is the chatbot persona injected into every system prompt.
// It can be overridden via Config.Persona.
const defaultPersona = "You are a helpful, concise conversational assistant that keeps track of what the user cares about and proactively surfaces relevant things it finds."

// Agent is the conversational core (spec.md §4.7): it owns the tool-calling
// loop but not the memory tiers or the tool implementations themselves,
// which arrive as capability interfaces.
type Agent struct {
	contextStore  *memory.ContextStore
	summaries     *memory.SummaryStore
	kb            KnowledgeSearcher
	toolCompleter ports.ToolCompleter
	textCompleter ports.TextCompleter
	registry      *Registry
	maxToolRounds int
	persona       string
}

// Config bundles Agent's collaborators.
type Config struct {
	ContextStore  *memory.ContextStore
	Summaries     *memory.SummaryStore
	KnowledgeBase KnowledgeSearcher
	ToolCompleter ports.ToolCompleter
	TextCompleter ports.TextCompleter
	Registry      *Registry
	MaxToolRounds int // defaults to 7 (within spec.md's 5-10 band)
	Persona       string
}

// New constructs an Agent.
func New(cfg Config) *Agent {
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	persona := cfg.Persona
	if persona == "" {
		persona = defaultPersona
	}
	return &Agent{
		contextStore:  cfg.ContextStore,
		summaries:     cfg.Summaries,
		kb:            cfg.KnowledgeBase,
		toolCompleter: cfg.ToolCompleter,
		textCompleter: cfg.TextCompleter,
		registry:      cfg.Registry,
		maxToolRounds: maxRounds,
		persona:       persona,
	}
}

// HandleUserMessage implements spec.md §4.7's HandleUserMessage algorithm:
// append the inbound message, build a system prompt with persona/top
// summaries/RAG context, run the bounded tool-calling loop, sanitize the
// result, and append the reply before returning it.
func (a *Agent) HandleUserMessage(ctx context.Context, userID, text string) (string, error) {
	a.contextStore.Append(ctx, userID, memory.RoleUser, text)

	system := a.buildSystemPrompt(ctx, userID, text)
	history := toPortsMessages(a.contextStore.History(userID))

	reply, err := a.runToolLoop(ctx, userID, system, history)
	if err != nil {
		return "", err
	}

	reply = SanitizeReply(reply)
	a.contextStore.Append(ctx, userID, memory.RoleAssistant, reply)
	return reply, nil
}

func (a *Agent) buildSystemPrompt(ctx context.Context, userID, text string) string {
	var sb strings.Builder
	sb.WriteString(a.persona)
	sb.WriteString("\n\nCurrent time: ")
	sb.WriteString(time.Now().Format(time.RFC1123))
	sb.WriteString("\n\nTool-selection priority: prefer recall_history and scrape_news (cheap, local) before web_search; use deep_research only when cheaper tools return nothing.")

	if a.summaries != nil {
		if recent, err := a.summaries.Recent(ctx, userID, recentSummaryCount); err == nil && len(recent) > 0 {
			sb.WriteString("\n\nWhat you remember about this user:\n")
			for _, s := range recent {
				sb.WriteString("- ")
				sb.WriteString(s.Summary)
				sb.WriteString("\n")
			}
		}
	}

	if a.kb != nil {
		if kbResult, err := a.kb.Search(ctx, text, ragPrefetchLimit, ""); err == nil && kbResult != noRelevantKnowledge {
			sb.WriteString("\n\nRelevant things you've learned recently:\n")
			sb.WriteString(kbResult)
		}
	}

	return sb.String()
}

// runToolLoop runs the bounded tool-calling loop from spec.md §4.7 steps 4-5.
func (a *Agent) runToolLoop(ctx context.Context, userID, system string, history []ports.Message) (string, error) {
	messages := append([]ports.Message{}, history...)

	var partialResults []string
	for round := 0; round < a.maxToolRounds; round++ {
		resp, err := a.toolCompleter.Complete(ctx, ports.CompletionRequest{
			System:   system,
			Messages: messages,
			Tools:    a.registry.Definitions(),
		})
		if err != nil {
			return "", fmt.Errorf("agent: tool completer: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, ports.Message{Role: "assistant", Content: resp.Content})
		for _, tc := range resp.ToolCalls {
			result, err := a.registry.Execute(ctx, userID, tc.Name, tc.Arguments)
			if err != nil {
				result = fmt.Sprintf("tool %s failed: %v", tc.Name, err)
			} else {
				partialResults = append(partialResults, result)
			}
			messages = append(messages, ports.Message{
				Role:    "tool",
				Content: fmt.Sprintf("[tool_call_id:%s] %s", tc.ID, result),
			})
		}
	}

	return a.budgetExhaustedReply(ctx, system, partialResults)
}

// budgetExhaustedReply implements spec.md §4.7 step 5's two fallbacks once
// MAX_TOOL_ROUNDS is spent.
func (a *Agent) budgetExhaustedReply(ctx context.Context, system string, partialResults []string) (string, error) {
	if len(partialResults) == 0 {
		return "I looked but couldn't find anything useful in time. Try rephrasing?", nil
	}

	prompt := "You hit the search limit. Using only the following partial findings, write a short closing reply to the user:\n\n" +
		strings.Join(partialResults, "\n---\n")

	reply, err := a.textCompleter.Complete(ctx, ports.CompletionRequest{
		System:   system,
		Messages: []ports.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("agent: budget-exhausted fallback: %w", err)
	}
	return reply, nil
}

func toPortsMessages(history []memory.Message) []ports.Message {
	out := make([]ports.Message, len(history))
	for i, m := range history {
		out[i] = ports.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
