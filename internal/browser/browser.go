package browser

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// discoveryProbability is the chance a newly-seen origin becomes a
// discovered favorite hub (spec.md §4.5 step 5).
const discoveryProbability = 0.05

// minContentLen below which a fetched page is skipped as too thin to learn.
const minContentLen = 300

// KnowledgeWriter is the slice of KnowledgeBase the Browser needs. Declared
// here (not imported from package knowledge) so Browser depends only on a
// capability interface, per spec.md §8's "no back-pointers" rule.
type KnowledgeWriter interface {
	HasContentHash(ctx context.Context, hash string) (bool, error)
	Learn(ctx context.Context, content, source string, tags []string, category string, ts time.Time, contentHash string) error
}

// Browser is the autonomous crawler (spec.md §4.5). It exclusively mutates
// LinkTrackingEntry and FavoriteHub state.
type Browser struct {
	mu          sync.Mutex
	favorites   []FavoriteHub
	linkTracker map[string]LinkTrackingEntry

	statePath string

	maxPagesPerHour      int
	pagesVisitedThisHour int
	hourWindowStart       time.Time

	hubCooldown time.Duration
	linkStale   time.Duration

	cancelRequested atomic.Bool

	linkExtractor ports.LinkExtractor
	pageFetcher   ports.PageFetcher
	completer     ports.TextCompleter
	search        ports.SearchProvider
	kb            KnowledgeWriter

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Config bundles the Browser's tunables (from config.BrowserConfig).
type Config struct {
	MaxPagesPerHour int
	HubCooldown     time.Duration
	LinkStale       time.Duration
	StatePath       string
	Favorites       []FavoriteHub // seed favorites when no state file exists yet
}

// New constructs a Browser, loading any persisted state from cfg.StatePath.
func New(cfg Config, linkExtractor ports.LinkExtractor, pageFetcher ports.PageFetcher, completer ports.TextCompleter, search ports.SearchProvider, kb KnowledgeWriter) *Browser {
	st := loadState(cfg.StatePath)
	favorites := st.Favorites
	if len(favorites) == 0 {
		favorites = cfg.Favorites
	}

	return &Browser{
		favorites:       favorites,
		linkTracker:     st.LinkTracker,
		statePath:       cfg.StatePath,
		maxPagesPerHour: cfg.MaxPagesPerHour,
		hourWindowStart: time.Now(),
		hubCooldown:     cfg.HubCooldown,
		linkStale:       cfg.LinkStale,
		linkExtractor:   linkExtractor,
		pageFetcher:     pageFetcher,
		completer:       completer,
		search:          search,
		kb:              kb,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Interrupt raises the in-flight cancellation flag; the article loop checks
// it between fetches (spec.md §4.5 Cancellation).
func (b *Browser) Interrupt() {
	b.cancelRequested.Store(true)
}

func (b *Browser) clearInterrupt() {
	b.cancelRequested.Store(false)
}

func (b *Browser) budgetAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.hourWindowStart) >= time.Hour {
		b.hourWindowStart = time.Now()
		b.pagesVisitedThisHour = 0
	}
	return b.pagesVisitedThisHour < b.maxPagesPerHour
}

func (b *Browser) consumeBudget() {
	b.mu.Lock()
	b.pagesVisitedThisHour++
	b.mu.Unlock()
}

// Surf runs one crawl pass: pick a due hub, extract candidate articles,
// fetch and learn the ones that changed (spec.md §4.5).
func (b *Browser) Surf(ctx context.Context, intent string) SurfResult {
	b.clearInterrupt()
	result := SurfResult{Visited: []string{}}

	if !b.budgetAvailable() {
		return result
	}

	hub, idx := b.pickFavorite(intent)
	if hub == nil {
		return result
	}

	links, err := b.linkExtractor.ExtractLinks(ctx, hub.URL)
	b.consumeBudget()
	b.updateHubVisited(idx)
	if err != nil {
		slog.Warn("browser: extract links failed", "hub", hub.URL, "error", err)
		b.persist()
		return result
	}

	b.rngMu.Lock()
	b.rng.Shuffle(len(links), func(i, j int) { links[i], links[j] = links[j], links[i] })
	b.rngMu.Unlock()
	if len(links) > 5 {
		links = links[:5]
	}

	for _, link := range links {
		if b.cancelRequested.Load() {
			break
		}
		if b.visitArticle(ctx, link, *hub) {
			result.Visited = append(result.Visited, link.URL)
			result.Learned++
		}
	}

	b.persist()
	return result
}

// pickFavorite selects the hub with the oldest LastVisited that has cleared
// HubCooldown, optionally filtered by intent matching category or URL
// substring (spec.md §4.5 step 2). Returns nil if none qualify.
func (b *Browser) pickFavorite(intent string) (*FavoriteHub, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var bestIdx = -1
	var best *FavoriteHub
	now := time.Now()
	intent = strings.ToLower(strings.TrimSpace(intent))

	for i := range b.favorites {
		h := b.favorites[i]
		if intent != "" {
			if !strings.Contains(strings.ToLower(h.Category), intent) && !strings.Contains(strings.ToLower(h.URL), intent) {
				continue
			}
		}
		if now.Sub(h.LastVisited) < b.hubCooldown {
			continue
		}
		if best == nil || h.LastVisited.Before(best.LastVisited) {
			hCopy := h
			best = &hCopy
			bestIdx = i
		}
	}
	return best, bestIdx
}

func (b *Browser) updateHubVisited(idx int) {
	if idx < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx >= len(b.favorites) {
		return
	}
	b.favorites[idx].LastVisited = time.Now()
	b.favorites[idx].VisitCount++
}

// visitArticle implements spec.md §4.5 step 5: change detection, dedup,
// enrichment, and Learn. Returns true if a document was learned.
func (b *Browser) visitArticle(ctx context.Context, link ports.ArticleLink, hub FavoriteHub) bool {
	b.mu.Lock()
	tracked, known := b.linkTracker[link.URL]
	b.mu.Unlock()

	isUpdate := false
	if known {
		if time.Since(tracked.LastScraped) < b.linkStale {
			return false
		}
		isUpdate = true
	}

	content, err := b.pageFetcher.FetchContent(ctx, link.URL)
	b.consumeBudget()
	if err != nil {
		slog.Warn("browser: fetch failed", "url", link.URL, "error", err)
		return false
	}
	if len(content) < minContentLen {
		return false
	}

	currentHash := md5Hex(content)

	if known && tracked.ContentHash == currentHash {
		b.touchTracker(link.URL, currentHash)
		return false
	}
	if dup, _ := b.kb.HasContentHash(ctx, currentHash); dup {
		b.touchTracker(link.URL, currentHash)
		return false
	}

	enrichment, enriched := b.enrich(ctx, content)
	learned := content
	if enrichment != "" {
		learned = content + "\n\nResearch Context:\n" + enrichment
	}

	tags := []string{"autonomous_browse", hub.Category}
	if isUpdate {
		tags = append(tags, "updated_content")
	}
	if enriched {
		tags = append(tags, "enriched")
	}

	if err := b.kb.Learn(ctx, learned, link.URL, tags, hub.Category, time.Now(), currentHash); err != nil {
		slog.Warn("browser: learn failed", "url", link.URL, "error", err)
		return false
	}

	b.touchTracker(link.URL, currentHash)
	b.maybeDiscover(link.URL)
	return true
}

func (b *Browser) touchTracker(linkURL, hash string) {
	b.mu.Lock()
	b.linkTracker[linkURL] = LinkTrackingEntry{URL: linkURL, LastScraped: time.Now(), ContentHash: hash}
	b.mu.Unlock()
}

// enrich asks the LLM for a small checklist of facts needing external
// verification, then fetches up to two search results for each item. Any
// failure along the way degrades to (content) unenriched, per spec.md §4.5.
func (b *Browser) enrich(ctx context.Context, content string) (string, bool) {
	if b.completer == nil || b.search == nil {
		return "", false
	}

	checklist, err := b.enrichmentChecklist(ctx, content)
	if err != nil || len(checklist) == 0 {
		return "", false
	}

	var sb strings.Builder
	foundAny := false
	for _, item := range checklist {
		results, err := b.search.Search(ctx, item, 2)
		if err != nil || len(results) == 0 {
			continue
		}
		foundAny = true
		sb.WriteString(fmt.Sprintf("- %s:\n", item))
		for _, r := range results {
			sb.WriteString(fmt.Sprintf("  * %s — %s (%s)\n", r.Title, r.Description, r.URL))
		}
	}
	if !foundAny {
		return "", false
	}
	return sb.String(), true
}

func (b *Browser) enrichmentChecklist(ctx context.Context, content string) ([]string, error) {
	snippet := content
	if len(snippet) > 1500 {
		snippet = snippet[:1500]
	}
	req := ports.CompletionRequest{
		System: "List 1-2 specific facts or terms in this article that need external verification. " +
			"Respond with a JSON array of short search queries, no prose.",
		Messages: []ports.Message{{Role: "user", Content: snippet}},
	}
	raw, err := b.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if len(items) > 2 {
		items = items[:2]
	}
	return items, nil
}

// maybeDiscover adds the article's origin as a discovered favorite with
// probability discoveryProbability, if it is not already a favorite
// (spec.md §4.5 step 5, "favorites grow monotonically with diminishing
// marginal novelty").
func (b *Browser) maybeDiscover(articleURL string) {
	b.rngMu.Lock()
	roll := b.rng.Float64()
	b.rngMu.Unlock()
	if roll >= discoveryProbability {
		return
	}

	parsed, err := url.Parse(articleURL)
	if err != nil || parsed.Host == "" {
		return
	}
	origin := parsed.Scheme + "://" + parsed.Host

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.favorites {
		if h.URL == origin {
			return
		}
	}
	b.favorites = append(b.favorites, FavoriteHub{
		URL:      origin,
		Category: "general",
		AddedAt:  time.Now(),
		Source:   HubSourceDiscovered,
	})
}

func (b *Browser) persist() {
	b.mu.Lock()
	snapshot := state{
		Favorites:   append([]FavoriteHub(nil), b.favorites...),
		LinkTracker: make(map[string]LinkTrackingEntry, len(b.linkTracker)),
	}
	for k, v := range b.linkTracker {
		snapshot.LinkTracker[k] = v
	}
	b.mu.Unlock()
	persistState(b.statePath, snapshot, &b.mu)
}

// Favorites returns a copy of the current hub set.
func (b *Browser) Favorites() []FavoriteHub {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]FavoriteHub(nil), b.favorites...)
}

// AddFavorite registers a user-requested hub, if not already present.
func (b *Browser) AddFavorite(hubURL, category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.favorites {
		if h.URL == hubURL {
			return
		}
	}
	b.favorites = append(b.favorites, FavoriteHub{
		URL:      hubURL,
		Category: category,
		AddedAt:  time.Now(),
		Source:   HubSourceUser,
	})
}

func md5Hex(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
