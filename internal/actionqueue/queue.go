package actionqueue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

const defaultPriority = 5

// retryBackoffUnit is the default linear-backoff step from spec.md §4.6,
// used when Config.RetryBaseDelay is zero:
// scheduledFor = now + retryCount * step.
const retryBackoffUnit = 30 * time.Second

// Queue is the single priority queue that serializes every outbound send
// (spec.md §4.6). It exclusively owns QueuedAction state.
type Queue struct {
	mu        sync.Mutex
	pending   actionHeap
	cancelled map[string]bool

	lastProactive      map[string]time.Time
	proactiveCooldown  time.Duration
	maxRetries         int
	retryBase          time.Duration
	tickInterval       time.Duration

	limiter *rate.Limiter
	sender  ports.MessageSender

	stats Stats

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config bundles the ActionQueue's tunables (from config.ActionQueueConfig).
type Config struct {
	ProactiveCooldown time.Duration
	RateLimitDelay    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	TickInterval      time.Duration // defaults to 1s when zero
}

// New constructs a Queue. RegisterMessageSender must be called before
// Start for the worker loop to have anywhere to send.
func New(cfg Config) *Queue {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	delay := cfg.RateLimitDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = retryBackoffUnit
	}
	return &Queue{
		cancelled:         make(map[string]bool),
		lastProactive:     make(map[string]time.Time),
		proactiveCooldown: cfg.ProactiveCooldown,
		maxRetries:        cfg.MaxRetries,
		retryBase:         retryBase,
		tickInterval:      tick,
		limiter:           rate.NewLimiter(rate.Every(delay), 1),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

// RegisterMessageSender wires the core's outbound transport into the
// worker loop (spec.md §4.6).
func (q *Queue) RegisterMessageSender(sender ports.MessageSender) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sender = sender
}

// Enqueue adds an action and returns its id.
func (q *Queue) Enqueue(req EnqueueRequest) string {
	priority := req.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	action := &QueuedAction{
		ID:           uuid.NewString(),
		Kind:         req.Kind,
		UserID:       req.UserID,
		Content:      req.Content,
		ScheduledFor: time.Now().Add(req.Delay),
		Priority:     priority,
		Metadata:     req.Metadata,
	}

	q.mu.Lock()
	heap.Push(&q.pending, action)
	q.stats.Pending++
	q.mu.Unlock()

	return action.ID
}

// CanSendProactive reports whether enough time has passed since the last
// proactive send to this user (spec.md §4.6).
func (q *Queue) CanSendProactive(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	last, ok := q.lastProactive[userID]
	if !ok {
		return true
	}
	return time.Since(last) >= q.proactiveCooldown
}

// ProactiveCooldownRemaining returns how long until the next proactive send
// to userID is allowed. Zero when already allowed.
func (q *Queue) ProactiveCooldownRemaining(userID string) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	last, ok := q.lastProactive[userID]
	if !ok {
		return 0
	}
	remaining := q.proactiveCooldown - time.Since(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cancel marks an action as cancelled; the worker loop skips it on pop
// (lazy deletion, since container/heap has no O(log n) remove-by-id).
func (q *Queue) Cancel(actionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range q.pending {
		if a.ID == actionID {
			q.cancelled[actionID] = true
			return true
		}
	}
	return false
}

// UserActions returns a snapshot of userID's still-pending, non-cancelled
// actions.
func (q *Queue) UserActions(userID string) []QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueuedAction
	for _, a := range q.pending {
		if a.UserID == userID && !q.cancelled[a.ID] {
			out = append(out, *a)
		}
	}
	return out
}

// Stats returns current operational counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	return s
}

// Clear empties the pending queue without executing any action.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.cancelled = make(map[string]bool)
	q.stats.Pending = 0
}

// Start runs the single-consumer worker loop until ctx is cancelled or Stop
// is called (spec.md §4.6). Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.tickInterval)
	defer ticker.Stop()
	defer close(q.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.runOnce(ctx)
		}
	}
}

// Stop signals the worker loop to exit and blocks until it does.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	<-q.doneCh
}

// runOnce pops at most one eligible action and executes it, matching the
// "no parallel sends" guarantee in spec.md §4.6.
func (q *Queue) runOnce(ctx context.Context) {
	action := q.popEligible()
	if action == nil {
		return
	}

	q.mu.Lock()
	sender := q.sender
	q.mu.Unlock()
	if sender == nil {
		slog.Warn("actionqueue: no sender registered, dropping action", "id", action.ID)
		return
	}

	// The burst-1 limiter spaces consecutive sends at least RATE_LIMIT_DELAY
	// apart, including the first two after an idle spell.
	_ = q.limiter.Wait(ctx)
	if err := sender(ctx, action.UserID, action.Content); err != nil {
		q.handleFailure(action, err)
		return
	}

	q.handleSuccess(action)
}

// popEligible pops the first action whose scheduledFor has arrived, walking
// the heap in (priority desc, scheduledFor asc) pop order so a later,
// lower-priority-but-eligible action is never preferred over an earlier,
// higher-priority one that just isn't due yet.
func (q *Queue) popEligible() *QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var deferred []*QueuedAction
	var found *QueuedAction

	for q.pending.Len() > 0 {
		candidate := heap.Pop(&q.pending).(*QueuedAction)
		if q.cancelled[candidate.ID] {
			delete(q.cancelled, candidate.ID)
			continue
		}
		if !candidate.ScheduledFor.After(now) {
			found = candidate
			break
		}
		deferred = append(deferred, candidate)
	}
	for _, d := range deferred {
		heap.Push(&q.pending, d)
	}

	return found
}

func (q *Queue) handleSuccess(action *QueuedAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if action.Kind == KindProactive {
		q.lastProactive[action.UserID] = time.Now()
	}
	q.stats.Sent++
}

func (q *Queue) handleFailure(action *QueuedAction, err error) {
	slog.Warn("actionqueue: send failed", "id", action.ID, "user", action.UserID, "error", err)

	q.mu.Lock()
	defer q.mu.Unlock()

	if action.RetryCount >= q.maxRetries {
		q.stats.Dropped++
		slog.Warn("actionqueue: dropping action after max retries", "id", action.ID)
		return
	}
	action.RetryCount++
	action.ScheduledFor = time.Now().Add(time.Duration(action.RetryCount) * q.retryBase)
	heap.Push(&q.pending, action)
	q.stats.Retried++
}
