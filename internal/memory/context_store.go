package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// Archiver summarizes an expiring context and stores it durably. SummaryStore
// implements this (spec.md §4.2 "Summarize-and-archive").
type Archiver interface {
	SummarizeAndArchive(ctx context.Context, userID string, messages []Message) error
}

// conversationContext is the per-user in-memory rolling window (spec.md §3
// ConversationContext). Exported accessors copy out of it; nothing outside
// ContextStore ever holds a pointer into this struct, matching the
// "exclusive ownership" rule in spec.md §3.
type conversationContext struct {
	userID            string
	messages          []Message
	lastInteractionTs time.Time
	interests         map[string]struct{}
	msgSinceAnalysis  int
}

// snapshotContext is the on-disk JSON shape for context_state.json.
type snapshotContext struct {
	UserID            string    `json:"userId"`
	Messages          []Message `json:"messages"`
	LastInteractionTs time.Time `json:"lastInteractionTs"`
	Interests         []string  `json:"interests"`
	MsgSinceAnalysis  int       `json:"msgSinceAnalysis"`
}

// ContextStore is the short-term, per-user rolling conversation window
// (spec.md §4.1). It exclusively owns conversationContext objects.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*conversationContext

	ttl              time.Duration
	analysisInterval int

	completer ports.TextCompleter
	archiver  Archiver

	snapshotPath string
	dirty        bool

	// wg tracks in-flight fire-and-forget deep-analysis goroutines so
	// callers that need a clean join point (tests, graceful shutdown) can
	// wait on them without the Append hot path ever blocking on an LLM call.
	wg sync.WaitGroup
}

// NewContextStore constructs a ContextStore. snapshotPath may be empty to
// disable persistence (useful in tests).
func NewContextStore(ttl time.Duration, analysisInterval int, completer ports.TextCompleter, archiver Archiver, snapshotPath string) *ContextStore {
	cs := &ContextStore{
		contexts:         make(map[string]*conversationContext),
		ttl:              ttl,
		analysisInterval: analysisInterval,
		completer:        completer,
		archiver:         archiver,
		snapshotPath:     snapshotPath,
	}
	cs.load()
	return cs
}

// Append upserts the user's context, appends the message, and — for user
// messages — runs the fast interest heuristic inline and, every
// analysisInterval messages, fires off a deep LLM pass in the background
// (spec.md §4.1).
func (cs *ContextStore) Append(ctx context.Context, userID, role, content string) {
	now := time.Now()

	cs.mu.Lock()
	cc, ok := cs.contexts[userID]
	if !ok {
		cc = &conversationContext{userID: userID, interests: make(map[string]struct{})}
		cs.contexts[userID] = cc
	}
	cc.messages = append(cc.messages, Message{Role: role, Content: content, Ts: now})
	cc.lastInteractionTs = now

	var runDeep bool
	var recentSnapshot []Message
	var currentTags []string

	if role == RoleUser {
		cc.msgSinceAnalysis++
		for _, tag := range extractInterestsFast(content) {
			cc.interests[tag] = struct{}{}
		}
		if cs.analysisInterval > 0 && cc.msgSinceAnalysis >= cs.analysisInterval {
			cc.msgSinceAnalysis = 0
			runDeep = true
			recentSnapshot = lastN(cc.messages, 10)
			currentTags = setToSlice(cc.interests)
		}
	}
	cs.dirty = true
	cs.mu.Unlock()

	cs.persist()

	if runDeep {
		cs.scheduleDeepAnalysis(userID, recentSnapshot, currentTags)
	}
}

// scheduleDeepAnalysis fires the deep interest pass as an explicit
// background task with a join point (design notes §9): on completion it
// overwrites the interest set; on parse failure it leaves tags untouched.
func (cs *ContextStore) scheduleDeepAnalysis(userID string, recent []Message, currentTags []string) {
	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		tags, ok := runDeepInterestAnalysis(context.Background(), cs.completer, recent, currentTags)
		if !ok {
			return
		}
		cs.mu.Lock()
		if cc, exists := cs.contexts[userID]; exists {
			cc.interests = make(map[string]struct{}, len(tags))
			for _, t := range tags {
				cc.interests[t] = struct{}{}
			}
			cs.dirty = true
		}
		cs.mu.Unlock()
		cs.persist()
	}()
}

// WaitDeepAnalysis blocks until all in-flight deep-analysis tasks finish.
// Used by tests and graceful shutdown; never called from the hot path.
func (cs *ContextStore) WaitDeepAnalysis() {
	cs.wg.Wait()
}

// History returns messages within TTL of now, filtered on read (spec.md
// §4.1: "expired messages are filtered on read, not eagerly purged").
func (cs *ContextStore) History(userID string) []Message {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	cc, ok := cs.contexts[userID]
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-cs.ttl)
	out := make([]Message, 0, len(cc.messages))
	for _, m := range cc.messages {
		if m.Ts.After(cutoff) || m.Ts.Equal(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// ActiveUsers returns users whose lastInteractionTs is within TTL.
func (cs *ContextStore) ActiveUsers() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	cutoff := time.Now().Add(-cs.ttl)
	var out []string
	for uid, cc := range cs.contexts {
		if cc.lastInteractionTs.After(cutoff) {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

// Interests returns the user's current interest tag set.
func (cs *ContextStore) Interests(userID string) []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cc, ok := cs.contexts[userID]
	if !ok {
		return nil
	}
	return setToSlice(cc.interests)
}

// CleanupExpired runs summarize-and-archive for every context past TTL
// that holds at least 3 messages, then evicts it (spec.md §4.1, resolving
// the "two different CleanupExpired semantics" open question as
// summarize-then-evict). No interest analysis runs on eviction.
func (cs *ContextStore) CleanupExpired(ctx context.Context) int {
	cutoff := time.Now().Add(-cs.ttl)

	cs.mu.Lock()
	var expired []*conversationContext
	for uid, cc := range cs.contexts {
		if cc.lastInteractionTs.Before(cutoff) {
			expired = append(expired, cc)
			delete(cs.contexts, uid)
		}
	}
	if len(expired) > 0 {
		cs.dirty = true
	}
	cs.mu.Unlock()

	for _, cc := range expired {
		if len(cc.messages) >= 3 && cs.archiver != nil {
			if err := cs.archiver.SummarizeAndArchive(ctx, cc.userID, cc.messages); err != nil {
				slog.Warn("context: archive on eviction failed", "user", cc.userID, "error", err)
			}
		}
	}

	cs.persist()
	return len(expired)
}

// --- persistence (atomic snapshot, matching teacher's sessions.Manager.Save) ---

func (cs *ContextStore) persist() {
	if cs.snapshotPath == "" {
		return
	}

	cs.mu.RLock()
	if !cs.dirty {
		cs.mu.RUnlock()
		return
	}
	snapshots := make([]snapshotContext, 0, len(cs.contexts))
	for _, cc := range cs.contexts {
		snapshots = append(snapshots, snapshotContext{
			UserID:            cc.userID,
			Messages:          append([]Message(nil), cc.messages...),
			LastInteractionTs: cc.lastInteractionTs,
			Interests:         setToSlice(cc.interests),
			MsgSinceAnalysis:  cc.msgSinceAnalysis,
		})
	}
	cs.mu.RUnlock()

	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		slog.Warn("context: snapshot marshal failed", "error", err)
		return
	}

	dir := filepath.Dir(cs.snapshotPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("context: snapshot mkdir failed", "error", err)
		return
	}

	tmp, err := os.CreateTemp(dir, "context_state-*.tmp")
	if err != nil {
		slog.Warn("context: snapshot tempfile failed", "error", err)
		return
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Warn("context: snapshot write failed", "error", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		slog.Warn("context: snapshot sync failed", "error", err)
		return
	}
	tmp.Close()

	if err := os.Rename(tmpPath, cs.snapshotPath); err != nil {
		slog.Warn("context: snapshot rename failed", "error", err)
		return
	}
	cleanup = false

	cs.mu.Lock()
	cs.dirty = false
	cs.mu.Unlock()
}

func (cs *ContextStore) load() {
	if cs.snapshotPath == "" {
		return
	}
	data, err := os.ReadFile(cs.snapshotPath)
	if err != nil {
		return
	}
	var snapshots []snapshotContext
	if err := json.Unmarshal(data, &snapshots); err != nil {
		slog.Warn("context: snapshot load failed", "error", err)
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, s := range snapshots {
		cc := &conversationContext{
			userID:            s.UserID,
			messages:          s.Messages,
			lastInteractionTs: s.LastInteractionTs,
			interests:         make(map[string]struct{}, len(s.Interests)),
			msgSinceAnalysis:  s.MsgSinceAnalysis,
		}
		for _, tag := range s.Interests {
			cc.interests[tag] = struct{}{}
		}
		cs.contexts[s.UserID] = cc
	}
}

// --- helpers ---

func lastN(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return append([]Message(nil), msgs...)
	}
	return append([]Message(nil), msgs[len(msgs)-n:]...)
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
