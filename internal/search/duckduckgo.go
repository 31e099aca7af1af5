// Package search is the default ports.SearchProvider: a keyless scrape of
// DuckDuckGo's HTML results page, serving both the web_search tool
// (spec.md §4.7) and the Browser's enrichment step (spec.md §4.5 step 5).
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

const (
	searchTimeout = 30 * time.Second
	userAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DuckDuckGo is the keyless default ports.SearchProvider, adapted from the
// teacher's web_search_ddg.go.
type DuckDuckGo struct {
	client *http.Client
}

// NewDuckDuckGo constructs a DuckDuckGo search provider.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{client: &http.Client{Timeout: searchTimeout}}
}

// Search implements ports.SearchProvider by scraping DuckDuckGo's
// JS-free HTML results page.
func (p *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]ports.SearchResult, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	return extractResults(string(body), limit), nil
}

var (
	linkPattern    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	snippetPattern = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
)

func extractResults(html string, limit int) []ports.SearchResult {
	linkMatches := linkPattern.FindAllStringSubmatch(html, limit+5)
	if len(linkMatches) == 0 {
		return nil
	}
	snippetMatches := snippetPattern.FindAllStringSubmatch(html, limit+5)

	var results []ports.SearchResult
	for i := 0; i < len(linkMatches) && i < limit; i++ {
		rawURL := linkMatches[i][1]
		title := strings.TrimSpace(htmlTagPattern.ReplaceAllString(linkMatches[i][2], ""))

		// DDG wraps URLs with a redirect — extract the real URL from uddg=.
		if strings.Contains(rawURL, "uddg=") {
			if u, err := url.QueryUnescape(rawURL); err == nil {
				if idx := strings.Index(u, "uddg="); idx != -1 {
					extracted := u[idx+5:]
					if ampIdx := strings.Index(extracted, "&"); ampIdx != -1 {
						extracted = extracted[:ampIdx]
					}
					rawURL = extracted
				}
			}
		}

		desc := ""
		if i < len(snippetMatches) {
			desc = strings.TrimSpace(htmlTagPattern.ReplaceAllString(snippetMatches[i][1], ""))
		}

		results = append(results, ports.SearchResult{
			Title:       title,
			URL:         rawURL,
			Description: desc,
		})
	}
	return results
}
