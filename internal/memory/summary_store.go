package memory

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// Summary is a durable, deduplicated conversation digest (spec.md §3
// ConversationSummary).
type Summary struct {
	ID          string
	UserID      string
	Summary     string
	Ts          time.Time
	ContextHash string
}

// SummaryStore is the durable long-term memory tier (spec.md §4.2). It
// implements Archiver so ContextStore can hand it an expiring context
// without knowing how summarization happens.
type SummaryStore struct {
	db        *sql.DB
	completer ports.TextCompleter
	maxPerUser int
}

// NewSummaryStore constructs a SummaryStore over an already-migrated DB.
func NewSummaryStore(db *sql.DB, completer ports.TextCompleter, maxPerUser int) *SummaryStore {
	return &SummaryStore{db: db, completer: completer, maxPerUser: maxPerUser}
}

// contextHash is md5(userID + "|" + canonical message transcript), used to
// dedup re-summarizing the same window (spec.md §4.2 DuplicateSummary rule).
func contextHash(userID string, messages []Message) string {
	var sb strings.Builder
	sb.WriteString(userID)
	sb.WriteByte('|')
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteByte(':')
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func summarizePrompt(userID string, messages []Message) ports.CompletionRequest {
	msgs := make([]ports.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ports.Message{Role: m.Role, Content: m.Content})
	}
	return ports.CompletionRequest{
		System:   "Summarize this conversation in 2-3 sentences, preserving names, dates and any commitments made. Respond with plain text only.",
		Messages: msgs,
	}
}

// SummarizeAndArchive implements Archiver. It is a no-op (not an error) when
// the context hash already exists, per spec.md §4.2.
func (s *SummaryStore) SummarizeAndArchive(ctx context.Context, userID string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	hash := contextHash(userID, messages)

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversation_summary WHERE context_hash = ?`, hash).Scan(&exists)
	if err == nil {
		return nil // duplicate summary, treated as a successful no-op
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("summary: dedup check: %w", err)
	}

	if s.completer == nil {
		return fmt.Errorf("summary: no text completer configured")
	}
	text, err := s.completer.Complete(ctx, summarizePrompt(userID, messages))
	if err != nil {
		return fmt.Errorf("summary: completion: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	return s.Store(ctx, Summary{
		ID:          uuid.NewString(),
		UserID:      userID,
		Summary:     text,
		Ts:          time.Now(),
		ContextHash: hash,
	})
}

// Store inserts a summary, then trims the user's history down to
// maxPerUser (spec.md §4.2 retention policy). Duplicate context hashes are
// treated as a no-op, not an error.
func (s *SummaryStore) Store(ctx context.Context, sm Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_summary (id, user_id, summary, ts, context_hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(context_hash) DO NOTHING`,
		sm.ID, sm.UserID, sm.Summary, sm.Ts.Unix(), sm.ContextHash)
	if err != nil {
		return fmt.Errorf("summary: insert: %w", err)
	}
	return s.trim(ctx, sm.UserID)
}

func (s *SummaryStore) trim(ctx context.Context, userID string) error {
	if s.maxPerUser <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_summary
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM conversation_summary WHERE user_id = ? ORDER BY ts DESC LIMIT ?
		)`, userID, userID, s.maxPerUser)
	if err != nil {
		return fmt.Errorf("summary: trim: %w", err)
	}
	return nil
}

// Recent returns up to n most recent summaries for userID, newest first.
func (s *SummaryStore) Recent(ctx context.Context, userID string, n int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, summary, ts, context_hash FROM conversation_summary
		 WHERE user_id = ? ORDER BY ts DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("summary: query: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var ts int64
		if err := rows.Scan(&sm.ID, &sm.UserID, &sm.Summary, &ts, &sm.ContextHash); err != nil {
			return nil, fmt.Errorf("summary: scan: %w", err)
		}
		sm.Ts = time.Unix(ts, 0)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// marshalMetadata is used by HistoryStore to stash arbitrary key/value
// metadata alongside a row.
func marshalMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
