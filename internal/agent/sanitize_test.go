package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeReply_StripsThinkingTags(t *testing.T) {
	out := SanitizeReply("<think>let me reason about this</think>Here's the answer.")
	require.Equal(t, "Here's the answer.", out)
}

func TestSanitizeReply_StripsMultipleThinkingVariants(t *testing.T) {
	out := SanitizeReply("<thinking>hmm</thinking>Hello<thought>more</thought> world")
	require.Equal(t, "Hello world", out)
}

func TestSanitizeReply_CollapsesWhitespace(t *testing.T) {
	out := SanitizeReply("hello    world\n\n\n\nnext paragraph")
	require.Equal(t, "hello world\n\nnext paragraph", out)
}

func TestSanitizeReply_TruncatesAtWordCap(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = "word"
	}
	out := SanitizeReply(strings.Join(words, " "))
	require.True(t, strings.HasSuffix(out, "…"))
	require.Len(t, strings.Fields(strings.TrimSuffix(out, "…")), mobileWordCap)
}

func TestSanitizeReply_UnderCapUnchanged(t *testing.T) {
	out := SanitizeReply("short reply")
	require.Equal(t, "short reply", out)
}

func TestSanitizeReply_EmptyInput(t *testing.T) {
	require.Equal(t, "", SanitizeReply(""))
}
