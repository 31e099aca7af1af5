package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/driftwatch/internal/browser"
	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

const defaultSearchResults = 5

// KnowledgeSearcher is the slice of knowledge.Store the agent's tools need.
// Declared here rather than importing knowledge.Store by concrete type, so
// this package only depends on the capability it actually uses.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int, category string) (string, error)
	CategoryDigest(ctx context.Context, category string, limit int) (string, error)
}

// HistoryRecaller is the slice of memory.HistoryStore the recall_history
// tool needs.
type HistoryRecaller interface {
	Query(ctx context.Context, q memory.HistoryQuery) ([]memory.HistoryEntry, error)
}

// ProfileRecaller is the slice of memory.ProfileStore the recall_history
// tool uses to enrich replies with known name/location/language facts.
type ProfileRecaller interface {
	Get(ctx context.Context, userID string) (memory.UserProfile, bool, error)
}

// DeepResearcher is the slice of browser.Browser the deep_research tool
// needs.
type DeepResearcher interface {
	Surf(ctx context.Context, intent string) browser.SurfResult
}

// RegisterTools wires the four tools from spec.md §4.7 into r. Any
// dependency left nil simply yields a tool that reports unavailability
// instead of panicking, since the ToolCompleter decides at runtime which
// tools to call.
func RegisterTools(r *Registry, search ports.SearchProvider, history HistoryRecaller, kb KnowledgeSearcher, researcher DeepResearcher, profiles ProfileRecaller) {
	r.Register(ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information. Use for facts, news, or anything that might have changed recently.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":       map[string]interface{}{"type": "string"},
				"num_results": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}, webSearchHandler(search))

	r.Register(ports.ToolDefinition{
		Name:        "recall_history",
		Description: "Search this user's own message history for something they mentioned before.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":     map[string]interface{}{"type": "string"},
				"days_back": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}, recallHistoryHandler(history, profiles))

	r.Register(ports.ToolDefinition{
		Name:        "scrape_news",
		Description: "Return the last cached news digest for a category (general, tech, business, sports, world).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"category": map[string]interface{}{
					"type": "string",
					"enum": []string{"general", "tech", "business", "sports", "world"},
				},
			},
			"required": []string{"category"},
		},
	}, scrapeNewsHandler(kb))

	r.Register(ports.ToolDefinition{
		Name:        "deep_research",
		Description: "Run a focused multi-page browsing session on a topic. Expensive; use only when web_search and scrape_news come back empty.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
			},
			"required": []string{"query"},
		},
	}, deepResearchHandler(researcher))
}

func webSearchHandler(search ports.SearchProvider) ToolHandler {
	return func(ctx context.Context, userID string, args map[string]interface{}) (string, error) {
		if search == nil {
			return "web search is unavailable", nil
		}
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("agent: web_search requires query")
		}
		limit := intArg(args, "num_results", defaultSearchResults)

		results, err := search.Search(ctx, query, limit)
		if err != nil {
			return "", fmt.Errorf("agent: web_search: %w", err)
		}
		if len(results) == 0 {
			return "no results found", nil
		}
		var sb strings.Builder
		for i, r := range results {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("%s - %s\n%s", r.Title, r.URL, r.Description))
		}
		return sb.String(), nil
	}
}

func recallHistoryHandler(history HistoryRecaller, profiles ProfileRecaller) ToolHandler {
	return func(ctx context.Context, userID string, args map[string]interface{}) (string, error) {
		if history == nil {
			return "history recall is unavailable", nil
		}
		query, _ := args["query"].(string)
		daysBack := intArg(args, "days_back", 30)

		var keywords []string
		if query != "" {
			keywords = strings.Fields(query)
		}

		matches, err := history.Query(ctx, memory.HistoryQuery{
			UserID:   userID,
			Keywords: keywords,
			Since:    time.Now().Add(-time.Duration(daysBack) * 24 * time.Hour),
			Limit:    200,
		})
		if err != nil {
			return "", fmt.Errorf("agent: recall_history: %w", err)
		}

		var sb strings.Builder
		if profiles != nil {
			if prof, ok, err := profiles.Get(ctx, userID); err == nil && ok {
				if s := prof.Summary(); s != "" {
					sb.WriteString("known facts: " + s + "\n")
				}
			}
		}
		if len(matches) == 0 {
			if sb.Len() == 0 {
				return "nothing found in history", nil
			}
			return sb.String(), nil
		}

		for i, e := range matches {
			if i > 0 || sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("[%s] %s: %s", e.Ts.Format("2006-01-02"), e.Role, e.Content))
		}
		return sb.String(), nil
	}
}

func scrapeNewsHandler(kb KnowledgeSearcher) ToolHandler {
	return func(ctx context.Context, userID string, args map[string]interface{}) (string, error) {
		if kb == nil {
			return "news cache is unavailable", nil
		}
		category, _ := args["category"].(string)
		if category == "" {
			category = "general"
		}
		digest, err := kb.CategoryDigest(ctx, category, 5)
		if err != nil {
			return "", fmt.Errorf("agent: scrape_news: %w", err)
		}
		return digest, nil
	}
}

func deepResearchHandler(researcher DeepResearcher) ToolHandler {
	return func(ctx context.Context, userID string, args map[string]interface{}) (string, error) {
		if researcher == nil {
			return "deep research is unavailable", nil
		}
		query, _ := args["query"].(string)
		if query == "" {
			return "", fmt.Errorf("agent: deep_research requires query")
		}
		result := researcher.Surf(ctx, query)
		if result.Learned == 0 {
			return "no new information found", nil
		}
		return fmt.Sprintf("visited %d pages and learned %d new things about %q", len(result.Visited), result.Learned, query), nil
	}
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
