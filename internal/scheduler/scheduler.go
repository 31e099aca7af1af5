// Package scheduler implements the proactive duty cycle from spec.md §4.8:
// a one-tick-per-minute loop that crawls, accumulates fresh knowledge per
// user, and periodically flushes batched digests through the Agent and
// ActionQueue.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/driftwatch/internal/actionqueue"
	"github.com/nextlevelbuilder/driftwatch/internal/browser"
)

const newFreshnessGlyph = "🆕"

// ActiveUserLister is the slice of memory.ContextStore the Scheduler needs.
type ActiveUserLister interface {
	ActiveUsers() []string
	Interests(userID string) []string
	CleanupExpired(ctx context.Context) int
}

// Crawler is the slice of browser.Browser the Scheduler needs.
type Crawler interface {
	Surf(ctx context.Context, intent string) browser.SurfResult
	Interrupt()
}

// NewsSearcher is the slice of knowledge.Store the Scheduler needs for the
// accumulate phase.
type NewsSearcher interface {
	Search(ctx context.Context, query string, limit int, category string) (string, error)
}

// Cleaner is the slice of knowledge.Store the Scheduler needs for
// maintenance.
type Cleaner interface {
	CleanupOlderThan(ctx context.Context, days int) (int, error)
}

// DigestGenerator is the slice of agent.Agent the Scheduler needs for the
// flush phase.
type DigestGenerator interface {
	GenerateNewsDigest(ctx context.Context, userID string, rawItems []string) (string, error)
}

// Config bundles the Scheduler's tunables (spec.md §6 configuration).
type Config struct {
	TickInterval        time.Duration // default 60s
	MaintenanceInterval time.Duration // default 300s
	BatchFlushTicks     int           // default 30
	KnowledgeMaxAgeDays int           // default 90

	// MaintenanceCron, when set, gates the sweep: the maintenance ticker
	// still fires every MaintenanceInterval, but Maintenance only does work
	// when the cron expression is due for the current minute (matching the
	// teacher's gronx-driven cron job system).
	MaintenanceCron string
}

// Scheduler drives the Crawl/Accumulate/Flush tick and the periodic
// maintenance sweep (spec.md §4.8).
type Scheduler struct {
	contextStore ActiveUserLister
	crawler      Crawler
	kb           NewsSearcher
	cleaner      Cleaner
	digester     DigestGenerator
	queue        *actionqueue.Queue

	tickInterval        time.Duration
	maintenanceInterval time.Duration
	batchFlushTicks     int
	knowledgeMaxAgeDays int
	maintenanceCron     string
	cron                *gronx.Gronx

	mu               sync.Mutex
	pendingNewsBatch map[string]map[string]struct{}
	tickCount        int

	rngMu sync.Mutex
	rng   *rand.Rand

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Scheduler.
func New(cfg Config, contextStore ActiveUserLister, crawler Crawler, kb NewsSearcher, cleaner Cleaner, digester DigestGenerator, queue *actionqueue.Queue) *Scheduler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	maintenance := cfg.MaintenanceInterval
	if maintenance <= 0 {
		maintenance = 5 * time.Minute
	}
	flushTicks := cfg.BatchFlushTicks
	if flushTicks <= 0 {
		flushTicks = 30
	}
	maxAge := cfg.KnowledgeMaxAgeDays
	if maxAge <= 0 {
		maxAge = 90
	}

	return &Scheduler{
		contextStore:        contextStore,
		crawler:             crawler,
		kb:                  kb,
		cleaner:             cleaner,
		digester:            digester,
		queue:               queue,
		tickInterval:        tick,
		maintenanceInterval: maintenance,
		batchFlushTicks:     flushTicks,
		knowledgeMaxAgeDays: maxAge,
		maintenanceCron:     cfg.MaintenanceCron,
		cron:                gronx.New(),
		pendingNewsBatch:    make(map[string]map[string]struct{}),
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// Start runs the ticker loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	maintenanceTicker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()
	defer maintenanceTicker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-maintenanceTicker.C:
			s.Maintenance(ctx)
		}
	}
}

// Stop signals the loop to exit and blocks until it does.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Interrupt is called synchronously when an inbound user message arrives
// (spec.md §4.8): it sets the Browser cancellation flag so the current
// crawl yields promptly.
func (s *Scheduler) Interrupt() {
	s.crawler.Interrupt()
}

// Tick runs one Crawl → Accumulate → Flush cycle.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	s.tickCount++
	shouldFlush := s.tickCount%s.batchFlushTicks == 0
	s.mu.Unlock()

	active := s.contextStore.ActiveUsers()

	s.crawlPhase(ctx, active)
	s.accumulatePhase(ctx, active)
	if shouldFlush {
		s.flushPhase(ctx)
	}
}

// crawlPhase always attempts a crawl; Browser enforces its own budget. If
// any active user exists, a random active user and a random tag from
// their interests seeds the crawl's intent.
func (s *Scheduler) crawlPhase(ctx context.Context, active []string) {
	intent := ""
	if len(active) > 0 {
		userID := active[s.randIntn(len(active))]
		interests := s.contextStore.Interests(userID)
		if len(interests) > 0 {
			intent = interests[s.randIntn(len(interests))]
		}
	}
	s.crawler.Surf(ctx, intent)
}

// accumulatePhase searches fresh knowledge per active user's interests and
// queues any 🆕-marked result for that user's pending digest batch.
func (s *Scheduler) accumulatePhase(ctx context.Context, active []string) {
	for _, userID := range active {
		interests := s.contextStore.Interests(userID)
		if len(interests) == 0 {
			continue
		}
		for _, interest := range interests {
			result, err := s.kb.Search(ctx, interest, 2, "")
			if err != nil {
				slog.Warn("scheduler: accumulate search failed", "user", userID, "interest", interest, "error", err)
				continue
			}
			if !containsFreshGlyph(result) {
				continue
			}
			s.addToPendingBatch(userID, result)
		}
	}
}

// flushPhase, every BATCH_FLUSH_INTERVAL ticks, drains each user's pending
// batch and enqueues a digest as a high-priority proactive action.
func (s *Scheduler) flushPhase(ctx context.Context) {
	batches := s.drainPendingBatches()
	for userID, items := range batches {
		digest, err := s.digester.GenerateNewsDigest(ctx, userID, items)
		if err != nil {
			slog.Warn("scheduler: generate news digest failed", "user", userID, "error", err)
			continue
		}
		if digest == "" {
			continue
		}
		s.queue.Enqueue(actionqueue.EnqueueRequest{
			Kind:     actionqueue.KindProactive,
			UserID:   userID,
			Content:  digest,
			Priority: 8,
		})
	}
}

// Maintenance runs the periodic cleanup sweep (spec.md §4.8). If
// MaintenanceCron is configured, the sweep only runs on ticks the cron
// expression marks as due; otherwise every firing of the maintenance
// ticker runs it.
func (s *Scheduler) Maintenance(ctx context.Context) {
	if s.maintenanceCron != "" {
		// Evaluate at the start of the minute: gronx reads a 5-field
		// expression as due only at second 0.
		due, err := s.cron.IsDue(s.maintenanceCron, time.Now().Truncate(time.Minute))
		if err != nil {
			slog.Warn("scheduler: invalid maintenance cron expression", "expr", s.maintenanceCron, "error", err)
		} else if !due {
			return
		}
	}

	removed := s.contextStore.CleanupExpired(ctx)
	slog.Info("scheduler: maintenance cleaned expired contexts", "count", removed)

	if s.cleaner != nil {
		n, err := s.cleaner.CleanupOlderThan(ctx, s.knowledgeMaxAgeDays)
		if err != nil {
			slog.Warn("scheduler: knowledge cleanup failed", "error", err)
		} else {
			slog.Info("scheduler: maintenance cleaned stale knowledge", "count", n)
		}
	}
}

func (s *Scheduler) addToPendingBatch(userID, item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pendingNewsBatch[userID]
	if !ok {
		set = make(map[string]struct{})
		s.pendingNewsBatch[userID] = set
	}
	set[item] = struct{}{}
}

func (s *Scheduler) drainPendingBatches() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]string, len(s.pendingNewsBatch))
	for userID, set := range s.pendingNewsBatch {
		if len(set) == 0 {
			continue
		}
		items := make([]string, 0, len(set))
		for item := range set {
			items = append(items, item)
		}
		out[userID] = items
	}
	s.pendingNewsBatch = make(map[string]map[string]struct{})
	return out
}

func (s *Scheduler) randIntn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func containsFreshGlyph(result string) bool {
	return strings.Contains(result, newFreshnessGlyph)
}
