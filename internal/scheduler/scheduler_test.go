package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/driftwatch/internal/actionqueue"
	"github.com/nextlevelbuilder/driftwatch/internal/browser"
)

type stubContextStore struct {
	active    []string
	interests map[string][]string
	cleaned   int
}

func (s *stubContextStore) ActiveUsers() []string { return s.active }
func (s *stubContextStore) Interests(userID string) []string {
	return s.interests[userID]
}
func (s *stubContextStore) CleanupExpired(ctx context.Context) int { return s.cleaned }

type stubCrawler struct {
	mu          sync.Mutex
	intents     []string
	interrupted bool
}

func (c *stubCrawler) Surf(ctx context.Context, intent string) browser.SurfResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intent)
	return browser.SurfResult{}
}
func (c *stubCrawler) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
}

type stubNewsSearcher struct {
	results map[string]string
}

func (s stubNewsSearcher) Search(ctx context.Context, query string, limit int, category string) (string, error) {
	return s.results[query], nil
}

type stubCleaner struct {
	calledDays int
}

func (c *stubCleaner) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	c.calledDays = days
	return 3, nil
}

type stubDigester struct {
	reply string
}

func (d stubDigester) GenerateNewsDigest(ctx context.Context, userID string, rawItems []string) (string, error) {
	return d.reply, nil
}

func newTestScheduler(cs ActiveUserLister, crawler Crawler, kb NewsSearcher, cleaner Cleaner, digester DigestGenerator) *Scheduler {
	queue := actionqueue.New(actionqueue.Config{RateLimitDelay: 1})
	return New(Config{BatchFlushTicks: 3}, cs, crawler, kb, cleaner, digester, queue)
}

func TestScheduler_CrawlPhase_NoActiveUsers(t *testing.T) {
	cs := &stubContextStore{}
	crawler := &stubCrawler{}
	s := newTestScheduler(cs, crawler, stubNewsSearcher{}, &stubCleaner{}, stubDigester{})

	s.crawlPhase(context.Background(), cs.ActiveUsers())
	require.Equal(t, []string{""}, crawler.intents)
}

func TestScheduler_CrawlPhase_PicksInterestAsIntent(t *testing.T) {
	cs := &stubContextStore{active: []string{"u1"}, interests: map[string][]string{"u1": {"hiking"}}}
	crawler := &stubCrawler{}
	s := newTestScheduler(cs, crawler, stubNewsSearcher{}, &stubCleaner{}, stubDigester{})

	s.crawlPhase(context.Background(), cs.ActiveUsers())
	require.Equal(t, []string{"hiking"}, crawler.intents)
}

func TestScheduler_AccumulatePhase_QueuesFreshResults(t *testing.T) {
	cs := &stubContextStore{active: []string{"u1"}, interests: map[string][]string{"u1": {"hiking"}}}
	kb := stubNewsSearcher{results: map[string]string{"hiking": "🆕 [news] trailhead.com (2026-07-31)\nnew trail opened"}}
	s := newTestScheduler(cs, &stubCrawler{}, kb, &stubCleaner{}, stubDigester{})

	s.accumulatePhase(context.Background(), cs.ActiveUsers())

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Contains(t, s.pendingNewsBatch, "u1")
	require.Len(t, s.pendingNewsBatch["u1"], 1)
}

func TestScheduler_AccumulatePhase_SkipsNonFreshResults(t *testing.T) {
	cs := &stubContextStore{active: []string{"u1"}, interests: map[string][]string{"u1": {"hiking"}}}
	kb := stubNewsSearcher{results: map[string]string{"hiking": "📜 [news] old.com (2026-01-01)\nold story"}}
	s := newTestScheduler(cs, &stubCrawler{}, kb, &stubCleaner{}, stubDigester{})

	s.accumulatePhase(context.Background(), cs.ActiveUsers())

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotContains(t, s.pendingNewsBatch, "u1")
}

func TestScheduler_AccumulatePhase_DedupsExactStrings(t *testing.T) {
	cs := &stubContextStore{active: []string{"u1"}, interests: map[string][]string{"u1": {"hiking", "trails"}}}
	kb := stubNewsSearcher{results: map[string]string{
		"hiking": "🆕 same item",
		"trails": "🆕 same item",
	}}
	s := newTestScheduler(cs, &stubCrawler{}, kb, &stubCleaner{}, stubDigester{})

	s.accumulatePhase(context.Background(), cs.ActiveUsers())

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.pendingNewsBatch["u1"], 1)
}

func TestScheduler_FlushPhase_EnqueuesDigestAsProactive(t *testing.T) {
	cs := &stubContextStore{}
	s := newTestScheduler(cs, &stubCrawler{}, stubNewsSearcher{}, &stubCleaner{}, stubDigester{reply: "Big news: trail opened."})
	s.addToPendingBatch("u1", "🆕 some item")

	s.flushPhase(context.Background())

	actions := s.queue.UserActions("u1")
	require.Len(t, actions, 1)
	require.Equal(t, actionqueue.KindProactive, actions[0].Kind)
	require.Equal(t, 8, actions[0].Priority)
	require.Equal(t, "Big news: trail opened.", actions[0].Content)
}

func TestScheduler_FlushPhase_SkipsEmptyDigest(t *testing.T) {
	cs := &stubContextStore{}
	s := newTestScheduler(cs, &stubCrawler{}, stubNewsSearcher{}, &stubCleaner{}, stubDigester{reply: ""})
	s.addToPendingBatch("u1", "🆕 some item")

	s.flushPhase(context.Background())

	require.Empty(t, s.queue.UserActions("u1"))
}

func TestScheduler_Tick_FlushesOnlyEveryBatchFlushTicks(t *testing.T) {
	cs := &stubContextStore{}
	s := newTestScheduler(cs, &stubCrawler{}, stubNewsSearcher{}, &stubCleaner{}, stubDigester{reply: "digest"})
	s.addToPendingBatch("u1", "🆕 a")

	s.Tick(context.Background()) // tick 1
	require.Empty(t, s.queue.UserActions("u1"))
	s.addToPendingBatch("u1", "🆕 a")
	s.Tick(context.Background()) // tick 2
	require.Empty(t, s.queue.UserActions("u1"))
	s.addToPendingBatch("u1", "🆕 a")
	s.Tick(context.Background()) // tick 3 -> flush
	require.Len(t, s.queue.UserActions("u1"), 1)
}

func TestScheduler_Maintenance_CleansUpContextAndKnowledge(t *testing.T) {
	cs := &stubContextStore{cleaned: 2}
	cleaner := &stubCleaner{}
	s := newTestScheduler(cs, &stubCrawler{}, stubNewsSearcher{}, cleaner, stubDigester{})

	s.Maintenance(context.Background())
	require.Equal(t, 90, cleaner.calledDays)
}

func TestScheduler_Maintenance_SkipsWhenCronNotDue(t *testing.T) {
	cs := &stubContextStore{cleaned: 2}
	cleaner := &stubCleaner{}
	queue := actionqueue.New(actionqueue.Config{RateLimitDelay: 1})
	s := New(Config{BatchFlushTicks: 3, MaintenanceCron: "0 0 30 2 *"}, cs, &stubCrawler{}, stubNewsSearcher{}, cleaner, stubDigester{}, queue)

	s.Maintenance(context.Background())
	require.Equal(t, 0, cleaner.calledDays)
}

func TestScheduler_Maintenance_RunsWhenCronDue(t *testing.T) {
	cs := &stubContextStore{cleaned: 2}
	cleaner := &stubCleaner{}
	queue := actionqueue.New(actionqueue.Config{RateLimitDelay: 1})
	s := New(Config{BatchFlushTicks: 3, MaintenanceCron: "* * * * *"}, cs, &stubCrawler{}, stubNewsSearcher{}, cleaner, stubDigester{}, queue)

	s.Maintenance(context.Background())
	require.Equal(t, 90, cleaner.calledDays)
}

func TestScheduler_Interrupt_DelegatesToCrawler(t *testing.T) {
	cs := &stubContextStore{}
	crawler := &stubCrawler{}
	s := newTestScheduler(cs, crawler, stubNewsSearcher{}, &stubCleaner{}, stubDigester{})

	s.Interrupt()
	crawler.mu.Lock()
	defer crawler.mu.Unlock()
	require.True(t, crawler.interrupted)
}
