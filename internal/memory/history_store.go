package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one durable, append-only record of everything exchanged
// with a user (spec.md §3 HistoryEntry). Never updated or deleted by normal
// operation.
type HistoryEntry struct {
	ID          string
	UserID      string
	Role        string
	Content     string
	MessageType string
	Ts          time.Time
	Metadata    map[string]string
}

// HistoryStore is the append-only full transcript (spec.md §4.3),
// independent of ContextStore's TTL eviction and SummaryStore's
// deduplication — it is never pruned by those tiers.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore constructs a HistoryStore over an already-migrated DB.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Store appends one entry. messageType defaults to MessageTypeText when empty.
func (h *HistoryStore) Store(ctx context.Context, e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MessageType == "" {
		e.MessageType = MessageTypeText
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("history: marshal metadata: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO history (id, user_id, role, content, message_type, ts, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Role, e.Content, e.MessageType, e.Ts.Unix(), meta)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// HistoryQuery is the filter spec.md §4.3 assigns to HistoryStore.Query:
// keyword/date window filtering happens in SQL, not over a capped
// in-memory window, so a match outside the newest rows is never missed.
type HistoryQuery struct {
	UserID   string
	Keywords []string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Query returns up to q.Limit entries for q.UserID matching every
// keyword (case-insensitive substring, ANDed) and falling within
// [q.Since, q.Until], newest first. A zero Since/Until leaves that
// bound open.
func (h *HistoryStore) Query(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	clauses := []string{"user_id = ?"}
	args := []any{q.UserID}

	if !q.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, q.Since.Unix())
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, q.Until.Unix())
	}
	for _, kw := range q.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		clauses = append(clauses, "content LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT id, user_id, role, content, message_type, ts, metadata FROM history
		 WHERE %s ORDER BY ts DESC, rowid DESC LIMIT ?`, strings.Join(clauses, " AND "))

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts int64
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Role, &e.Content, &e.MessageType, &ts, &meta); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Ts = time.Unix(ts, 0)
		if meta.Valid && meta.String != "" {
			m := make(map[string]string)
			if err := json.Unmarshal([]byte(meta.String), &m); err == nil {
				e.Metadata = m
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// escapeLike backslash-escapes SQLite LIKE wildcards so a keyword
// containing "%" or "_" is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
