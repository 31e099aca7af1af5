package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

func TestExtractInterestsFast(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no intent prefix, keyword present", "football is on tonight", nil},
		{"intent prefix with tech keyword", "I love coding in Go", []string{"tech"}},
		{"intent prefix without any keyword", "I like cats", nil},
		{"negated sentiment still has prefix", "i hate news about politics", []string{"news"}},
		{"tell me about finance", "tell me about the stock market", []string{"finance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractInterestsFast(tt.text)
			require.ElementsMatch(t, tt.want, got)
		})
	}
}

type stubCompleter struct {
	resp string
	err  error
}

func (s stubCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	return s.resp, s.err
}

func TestParseDeepInterestTags(t *testing.T) {
	tags, ok := parseDeepInterestTags(`["tech", "Finance"]`)
	require.True(t, ok)
	require.Equal(t, []string{"tech", "finance"}, tags)

	_, ok = parseDeepInterestTags("not json")
	require.False(t, ok)
}

func TestParseDeepInterestTags_FencedCodeBlock(t *testing.T) {
	tags, ok := parseDeepInterestTags("```json\n[\"sports\"]\n```")
	require.True(t, ok)
	require.Equal(t, []string{"sports"}, tags)
}

func TestRunDeepInterestAnalysis_NilCompleter(t *testing.T) {
	_, ok := runDeepInterestAnalysis(context.Background(), nil, nil, nil)
	require.False(t, ok)
}

func TestRunDeepInterestAnalysis_CompleterError(t *testing.T) {
	_, ok := runDeepInterestAnalysis(context.Background(), stubCompleter{err: errors.New("boom")}, nil, nil)
	require.False(t, ok)
}

func TestRunDeepInterestAnalysis_Success(t *testing.T) {
	tags, ok := runDeepInterestAnalysis(context.Background(), stubCompleter{resp: `["science"]`}, nil, []string{"tech"})
	require.True(t, ok)
	require.Equal(t, []string{"science"}, tags)
}
