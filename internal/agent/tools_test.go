package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/driftwatch/internal/browser"
	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

type stubSearchProvider struct {
	results []ports.SearchResult
	err     error
}

func (s stubSearchProvider) Search(ctx context.Context, query string, limit int) ([]ports.SearchResult, error) {
	return s.results, s.err
}

// stubHistoryRecaller stands in for HistoryStore's SQL-side filtering:
// it applies the same keyword/since constraints a real query would push
// into WHERE, so handler tests exercise the filtering contract without
// a database.
type stubHistoryRecaller struct {
	entries []memory.HistoryEntry
}

func (s stubHistoryRecaller) Query(ctx context.Context, q memory.HistoryQuery) ([]memory.HistoryEntry, error) {
	var out []memory.HistoryEntry
	for _, e := range s.entries {
		if !q.Since.IsZero() && e.Ts.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Ts.After(q.Until) {
			continue
		}
		matched := true
		for _, kw := range q.Keywords {
			if !strings.Contains(strings.ToLower(e.Content), strings.ToLower(kw)) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type stubKnowledgeSearcher struct {
	searchResult string
	digestResult string
}

func (s stubKnowledgeSearcher) Search(ctx context.Context, query string, limit int, category string) (string, error) {
	return s.searchResult, nil
}

func (s stubKnowledgeSearcher) CategoryDigest(ctx context.Context, category string, limit int) (string, error) {
	return s.digestResult, nil
}

type stubProfileRecaller struct {
	profile memory.UserProfile
	found   bool
}

func (s stubProfileRecaller) Get(ctx context.Context, userID string) (memory.UserProfile, bool, error) {
	return s.profile, s.found, nil
}

type stubDeepResearcher struct {
	result browser.SurfResult
}

func (s stubDeepResearcher) Surf(ctx context.Context, intent string) browser.SurfResult {
	return s.result
}

func TestWebSearchHandler_FormatsResults(t *testing.T) {
	h := webSearchHandler(stubSearchProvider{results: []ports.SearchResult{
		{Title: "Go 1.24 released", URL: "https://go.dev", Description: "new release"},
	}})
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "go release"})
	require.NoError(t, err)
	require.Contains(t, out, "Go 1.24 released")
}

func TestWebSearchHandler_NoQuery(t *testing.T) {
	h := webSearchHandler(stubSearchProvider{})
	_, err := h(context.Background(), "u1", map[string]interface{}{})
	require.Error(t, err)
}

func TestWebSearchHandler_NilProvider(t *testing.T) {
	h := webSearchHandler(nil)
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	require.Contains(t, out, "unavailable")
}

func TestRecallHistoryHandler_FiltersByQueryAndDays(t *testing.T) {
	h := recallHistoryHandler(stubHistoryRecaller{entries: []memory.HistoryEntry{
		{Role: "user", Content: "I love hiking in Colorado", Ts: time.Now().Add(-2 * 24 * time.Hour)},
		{Role: "user", Content: "completely unrelated", Ts: time.Now().Add(-2 * 24 * time.Hour)},
		{Role: "user", Content: "hiking trip last year", Ts: time.Now().Add(-40 * 24 * time.Hour)},
	}}, nil)
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "hiking", "days_back": float64(30)})
	require.NoError(t, err)
	require.Contains(t, out, "Colorado")
	require.NotContains(t, out, "last year")
}

func TestRecallHistoryHandler_NoMatches(t *testing.T) {
	h := recallHistoryHandler(stubHistoryRecaller{}, nil)
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "anything"})
	require.NoError(t, err)
	require.Equal(t, "nothing found in history", out)
}

func TestRecallHistoryHandler_IncludesProfileFacts(t *testing.T) {
	h := recallHistoryHandler(stubHistoryRecaller{}, stubProfileRecaller{
		found:   true,
		profile: memory.UserProfile{Name: "Jamie", Location: "Denver"},
	})
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "anything"})
	require.NoError(t, err)
	require.Contains(t, out, "Jamie")
	require.Contains(t, out, "Denver")
}

func TestScrapeNewsHandler_DelegatesToCategoryDigest(t *testing.T) {
	h := scrapeNewsHandler(stubKnowledgeSearcher{digestResult: "🆕 [tech] ..."})
	out, err := h(context.Background(), "u1", map[string]interface{}{"category": "tech"})
	require.NoError(t, err)
	require.Equal(t, "🆕 [tech] ...", out)
}

func TestScrapeNewsHandler_DefaultsToGeneral(t *testing.T) {
	var seenCategory string
	h := scrapeNewsHandler(categoryCapturingKB(&seenCategory))
	_, err := h(context.Background(), "u1", map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, "general", seenCategory)
}

func categoryCapturingKB(seen *string) KnowledgeSearcher {
	return captureKB{seen: seen}
}

type captureKB struct {
	seen *string
}

func (c captureKB) Search(ctx context.Context, query string, limit int, category string) (string, error) {
	return "", nil
}

func (c captureKB) CategoryDigest(ctx context.Context, category string, limit int) (string, error) {
	*c.seen = category
	return "", nil
}

func TestDeepResearchHandler_ReportsLearnedCount(t *testing.T) {
	h := deepResearchHandler(stubDeepResearcher{result: browser.SurfResult{Visited: []string{"a", "b"}, Learned: 2}})
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "climate"})
	require.NoError(t, err)
	require.Contains(t, out, "2 new things")
}

func TestDeepResearchHandler_NothingFound(t *testing.T) {
	h := deepResearchHandler(stubDeepResearcher{result: browser.SurfResult{}})
	out, err := h(context.Background(), "u1", map[string]interface{}{"query": "climate"})
	require.NoError(t, err)
	require.Equal(t, "no new information found", out)
}
