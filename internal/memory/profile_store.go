package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UserProfile is the slow-changing facts a user has shared over time
// (spec.md §6 persisted-state layout). It is never inferred by
// ContextStore's summarization pass — only explicitly upserted.
type UserProfile struct {
	UserID    string
	Name      string
	Location  string
	Language  string
	Facts     map[string]string
	LastAsked time.Time
}

// ProfileStore is a minimal store over user_profile, completing a table
// spec.md §6 names but never gives operations: recall_history uses it to
// enrich replies with name/location/language facts.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore constructs a ProfileStore over an already-migrated DB.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get returns userID's profile, or the zero value with ok=false if none
// has been recorded yet.
func (p *ProfileStore) Get(ctx context.Context, userID string) (UserProfile, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT user_id, name, location, language, facts, last_asked FROM user_profile WHERE user_id = ?`, userID)

	var prof UserProfile
	var name, location, language, facts sql.NullString
	var lastAsked sql.NullInt64
	if err := row.Scan(&prof.UserID, &name, &location, &language, &facts, &lastAsked); err != nil {
		if err == sql.ErrNoRows {
			return UserProfile{}, false, nil
		}
		return UserProfile{}, false, fmt.Errorf("profile: get: %w", err)
	}

	prof.Name = name.String
	prof.Location = location.String
	prof.Language = language.String
	if lastAsked.Valid {
		prof.LastAsked = time.Unix(lastAsked.Int64, 0)
	}
	if facts.Valid && facts.String != "" {
		m := make(map[string]string)
		if err := json.Unmarshal([]byte(facts.String), &m); err == nil {
			prof.Facts = m
		}
	}
	return prof, true, nil
}

// Upsert records a fact learned about userID, merging into any existing
// facts rather than replacing the row wholesale. Empty string fields leave
// the existing column untouched.
func (p *ProfileStore) Upsert(ctx context.Context, userID string, patch UserProfile) error {
	existing, _, err := p.Get(ctx, userID)
	if err != nil {
		return err
	}

	merged := existing
	merged.UserID = userID
	if patch.Name != "" {
		merged.Name = patch.Name
	}
	if patch.Location != "" {
		merged.Location = patch.Location
	}
	if patch.Language != "" {
		merged.Language = patch.Language
	}
	if len(patch.Facts) > 0 {
		if merged.Facts == nil {
			merged.Facts = make(map[string]string, len(patch.Facts))
		}
		for k, v := range patch.Facts {
			merged.Facts[k] = v
		}
	}
	merged.LastAsked = time.Now()

	facts, err := json.Marshal(merged.Facts)
	if err != nil {
		return fmt.Errorf("profile: marshal facts: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO user_profile (user_id, name, location, language, facts, last_asked) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, location = excluded.location,
		 language = excluded.language, facts = excluded.facts, last_asked = excluded.last_asked`,
		merged.UserID, merged.Name, merged.Location, merged.Language, string(facts), merged.LastAsked.Unix())
	if err != nil {
		return fmt.Errorf("profile: upsert: %w", err)
	}
	return nil
}

// Summary renders a one-line description of known facts for prompt
// injection, or "" if nothing has been recorded yet.
func (p *UserProfile) Summary() string {
	if p == nil {
		return ""
	}
	s := ""
	if p.Name != "" {
		s += "name: " + p.Name + "; "
	}
	if p.Location != "" {
		s += "location: " + p.Location + "; "
	}
	if p.Language != "" {
		s += "language: " + p.Language + "; "
	}
	for k, v := range p.Facts {
		s += k + ": " + v + "; "
	}
	return s
}
