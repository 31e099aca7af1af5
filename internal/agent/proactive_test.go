package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProactiveMessage_SkipToken(t *testing.T) {
	cs := newTestAgentContextStore()
	cs.Append(context.Background(), "u1", "user", "I love hiking")
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "SKIP"}})

	msg, err := a.GenerateProactiveMessage(context.Background(), "u1", "new hiking trail opened nearby")
	require.NoError(t, err)
	require.Equal(t, "", msg)
}

func TestGenerateProactiveMessage_ReturnsMessage(t *testing.T) {
	cs := newTestAgentContextStore()
	cs.Append(context.Background(), "u1", "user", "I love hiking")
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "New trail just opened near you!"}})

	msg, err := a.GenerateProactiveMessage(context.Background(), "u1", "new hiking trail opened nearby")
	require.NoError(t, err)
	require.Equal(t, "New trail just opened near you!", msg)
}

func TestGenerateNewsDigest_EmptyInterestsReturnsNull(t *testing.T) {
	cs := newTestAgentContextStore()
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "should not matter"}})

	msg, err := a.GenerateNewsDigest(context.Background(), "u1", []string{"item one"})
	require.NoError(t, err)
	require.Equal(t, "", msg)
}

func TestGenerateNewsDigest_NoMatchesToken(t *testing.T) {
	cs := newTestAgentContextStore()
	cs.Append(context.Background(), "u1", "user", "I like tech news")
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "NO_MATCHES"}})

	msg, err := a.GenerateNewsDigest(context.Background(), "u1", []string{"item one", "item two"})
	require.NoError(t, err)
	require.Equal(t, "", msg)
}

func TestGenerateNewsDigest_EmptyRawItemsReturnsNull(t *testing.T) {
	cs := newTestAgentContextStore()
	cs.Append(context.Background(), "u1", "user", "I like tech news")
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "shouldn't be called"}})

	msg, err := a.GenerateNewsDigest(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Equal(t, "", msg)
}

func TestGenerateNewsDigest_ReturnsDigest(t *testing.T) {
	cs := newTestAgentContextStore()
	cs.Append(context.Background(), "u1", "user", "I like tech news")
	a := New(Config{ContextStore: cs, Registry: NewRegistry(), TextCompleter: stubTextCompleter{reply: "Go 1.24 shipped today."}})

	msg, err := a.GenerateNewsDigest(context.Background(), "u1", []string{"item one", "item two"})
	require.NoError(t, err)
	require.Equal(t, "Go 1.24 shipped today.", msg)
}
