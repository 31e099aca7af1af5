package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// intentPrefixes gate the fast regex path — without one of these, a
// category keyword match is ignored. This is what keeps "I hate news"
// from tagging "news" (spec.md §4.1, REDESIGN FLAGS: strict intent-prefix
// rule adopted over the looser variant).
var intentPrefixes = []string{
	"i like", "i love", "interested in", "tell me about",
	"news about", "updates on", "looking for",
}

// categoryKeywords maps each interest tag to the keyword set that triggers it.
var categoryKeywords = map[string][]string{
	"tech":    {"tech", "technology", "programming", "coding", "ai", "software"},
	"finance": {"business", "finance", "stock", "market", "economy", "crypto"},
	"sports":  {"sports", "football", "basketball", "soccer", "game"},
	"news":    {"news", "headlines", "events", "world"},
	"science": {"science", "space", "biology", "physics"},
}

func hasIntentPrefix(lower string) bool {
	for _, p := range intentPrefixes {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// extractInterestsFast runs the cheap regex heuristic described in
// spec.md §4.1. It never errors and never blocks.
func extractInterestsFast(text string) []string {
	lower := strings.ToLower(text)
	if !hasIntentPrefix(lower) {
		return nil
	}

	var matched []string
	for tag, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, tag)
				break
			}
		}
	}
	return matched
}

// deepInterestPrompt builds the LLM prompt for the periodic refinement pass.
func deepInterestPrompt(recent []Message, currentTags []string) ports.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("Given the user's current interest tags and their last messages, ")
	sb.WriteString("return a refined JSON array of lowercase interest tags. ")
	sb.WriteString("Respond with JSON only, no prose.\n\n")
	sb.WriteString("Current tags: ")
	sb.WriteString(strings.Join(currentTags, ", "))
	sb.WriteString("\n\n")

	msgs := make([]ports.Message, 0, len(recent))
	for _, m := range recent {
		msgs = append(msgs, ports.Message{Role: m.Role, Content: m.Content})
	}

	return ports.CompletionRequest{
		System:   sb.String(),
		Messages: msgs,
	}
}

// parseDeepInterestTags parses the LLM's JSON array response. On parse
// failure it returns (nil, false) so the caller preserves the prior tag
// set (spec.md §7 ParseFailure policy).
func parseDeepInterestTags(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	// Tolerate a fenced code block, which chat models commonly emit.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, strings.ToLower(strings.TrimSpace(t)))
	}
	return out, true
}

// runDeepInterestAnalysis calls the TextCompleter and returns the refined
// tag set, or ok=false on any failure (swallowed and logged per spec.md §7).
func runDeepInterestAnalysis(ctx context.Context, completer ports.TextCompleter, recent []Message, currentTags []string) ([]string, bool) {
	if completer == nil {
		return nil, false
	}
	resp, err := completer.Complete(ctx, deepInterestPrompt(recent, currentTags))
	if err != nil {
		slog.Warn("interest: deep analysis failed", "error", err)
		return nil, false
	}
	tags, ok := parseDeepInterestTags(resp)
	if !ok {
		slog.Warn("interest: deep analysis parse failure, preserving existing tags")
		return nil, false
	}
	return tags, true
}
