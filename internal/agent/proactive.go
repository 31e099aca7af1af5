package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

const (
	skipToken      = "SKIP"
	noMatchesToken = "NO_MATCHES"
	lastMessagesN  = 3
	maxDigestItems = 3
)

// GenerateProactiveMessage asks the LLM whether discovered is worth
// surfacing to userID right now, given their interests and recent
// conversation (spec.md §4.7). A response of exactly "SKIP" suppresses
// the message.
func (a *Agent) GenerateProactiveMessage(ctx context.Context, userID, discovered string) (string, error) {
	interests := a.contextStore.Interests(userID)
	recent := lastN(a.contextStore.History(userID), lastMessagesN)

	prompt := fmt.Sprintf(
		"The user's known interests: %s\n\nRecent conversation:\n%s\n\nYou found this while browsing:\n%s\n\n"+
			"Decide whether this is worth proactively messaging the user about right now. "+
			"If not, reply with exactly SKIP. Otherwise write a short, mobile-friendly message surfacing it.",
		strings.Join(interests, ", "), formatMessages(recent), discovered)

	reply, err := a.textCompleter.Complete(ctx, ports.CompletionRequest{
		System:   a.persona,
		Messages: []ports.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("agent: generate proactive message: %w", err)
	}

	if strings.TrimSpace(reply) == skipToken {
		return "", nil
	}
	return SanitizeReply(reply), nil
}

// GenerateNewsDigest groups rawItems into at most 3 distinct stories
// matching userID's interests, one sentence each (spec.md §4.7). Requires
// non-empty interests; returns "" (null) when there's nothing to say.
func (a *Agent) GenerateNewsDigest(ctx context.Context, userID string, rawItems []string) (string, error) {
	interests := a.contextStore.Interests(userID)
	if len(interests) == 0 {
		return "", nil
	}
	if len(rawItems) == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"The user's interests: %s\n\nHere are raw items found while browsing (may contain duplicates):\n%s\n\n"+
			"Group duplicates, pick at most %d distinct stories that match the user's interests, and summarize each "+
			"in one sentence. If nothing matches, reply with exactly NO_MATCHES.",
		strings.Join(interests, ", "), strings.Join(rawItems, "\n---\n"), maxDigestItems)

	reply, err := a.textCompleter.Complete(ctx, ports.CompletionRequest{
		System:   a.persona,
		Messages: []ports.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("agent: generate news digest: %w", err)
	}

	if strings.TrimSpace(reply) == noMatchesToken {
		return "", nil
	}
	return SanitizeReply(reply), nil
}

func lastN(msgs []memory.Message, n int) []memory.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func formatMessages(msgs []memory.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
