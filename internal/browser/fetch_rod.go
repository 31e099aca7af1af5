package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// RodFetcher is the default PageFetcher/LinkExtractor adapter, driving a
// real headless Chrome via go-rod. It is the one concrete collaborator
// implementation this repo ships; everything else behind ports.PageFetcher
// and ports.LinkExtractor is out of scope.
type RodFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
}

var tagStripper = regexp.MustCompile(`(?is)<(script|style|nav|header|footer)[^>]*>.*?</(script|style|nav|header|footer)>`)
var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// NewRodFetcher launches a headless Chrome instance. Callers must call
// Close when done.
func NewRodFetcher(headless bool) (*RodFetcher, error) {
	l := launcher.New().Headless(headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch chrome: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect chrome: %w", err)
	}
	return &RodFetcher{browser: b}, nil
}

// Close releases the underlying browser process.
func (f *RodFetcher) Close() error {
	return f.browser.Close()
}

// FetchContent loads pageURL and returns the visible body text stripped of
// script/style/nav/footer noise (spec.md §4.5 step 5 PageFetcher role).
func (f *RodFetcher) FetchContent(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, err := f.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return "", fmt.Errorf("browser: open page: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("browser: wait load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read html: %w", err)
	}
	return cleanHTML(html), nil
}

// ExtractLinks returns anchor hrefs from hubURL resolved to absolute URLs,
// paired with their link text as the article title.
func (f *RodFetcher) ExtractLinks(ctx context.Context, hubURL string) ([]ports.ArticleLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, err := f.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: hubURL})
	if err != nil {
		return nil, fmt.Errorf("browser: open page: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: wait load: %w", err)
	}

	anchors, err := page.Elements("a[href]")
	if err != nil {
		return nil, fmt.Errorf("browser: find anchors: %w", err)
	}

	base, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("browser: parse hub url: %w", err)
	}

	seen := make(map[string]struct{})
	var links []ports.ArticleLink
	for _, a := range anchors {
		href, err := a.Attribute("href")
		if err != nil || href == nil || *href == "" {
			continue
		}
		resolved, err := base.Parse(*href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			continue
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		title, _ := a.Text()
		links = append(links, ports.ArticleLink{URL: abs, Title: strings.TrimSpace(title)})
	}
	return links, nil
}

func cleanHTML(raw string) string {
	cleaned := tagStripper.ReplaceAllString(raw, "")
	cleaned = htmlTagPattern.ReplaceAllString(cleaned, " ")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
