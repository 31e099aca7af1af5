package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// Store is the vector-backed KnowledgeBase (spec.md §4.4). It exclusively
// owns Document rows and the contentHash uniqueness index.
type Store struct {
	db       *sql.DB
	embedder ports.Embedder
}

// New constructs a Store over an already-migrated DB.
func New(db *sql.DB, embedder ports.Embedder) *Store {
	return &Store{db: db, embedder: embedder}
}

// Learn persists a document, rejecting short content and duplicate content
// hashes (idempotence across sources, spec.md §4.4).
func (s *Store) Learn(ctx context.Context, content, source string, tags []string, category string, ts time.Time, contentHash string) error {
	if len(content) < 10 {
		return fmt.Errorf("knowledge: content too short to learn")
	}

	dup, err := s.HasContentHash(ctx, contentHash)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("knowledge: embed: %w", err)
	}
	blob, err := encodeVector(vec)
	if err != nil {
		return fmt.Errorf("knowledge: encode vector: %w", err)
	}

	trimmed := content
	if len(trimmed) > maxContentLen {
		trimmed = trimmed[:maxContentLen]
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_document (id, content, vector, source, category, tags, ts, content_hash, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(content_hash) DO NOTHING`,
		uuid.NewString(), trimmed, blob, source, category, strings.Join(tags, ","), ts.Unix(), contentHash)
	if err != nil {
		return fmt.Errorf("knowledge: insert: %w", err)
	}
	return nil
}

// HasContentHash reports whether a (non-deleted) document with hash exists.
func (s *Store) HasContentHash(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM knowledge_document WHERE content_hash = ? AND deleted = 0`, hash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("knowledge: hash lookup: %w", err)
	}
	return true, nil
}

type scored struct {
	doc       Document
	relevance float64
	age       time.Duration
}

// Search runs the recency-weighted RAG ranking from spec.md §4.4 and
// returns a formatted, freshness-glyph-prefixed result block, or
// "no relevant knowledge found" when nothing clears the similarity bar.
// category, when non-empty, restricts candidates before scoring.
func (s *Store) Search(ctx context.Context, query string, limit int, category string) (string, error) {
	if s.embedder == nil {
		return "", fmt.Errorf("knowledge: no embedder configured")
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("knowledge: embed query: %w", err)
	}

	now := time.Now()
	candidates, expanded, err := s.loadCandidates(ctx, category, now)
	if err != nil {
		return "", err
	}

	var results []scored
	for _, doc := range candidates {
		similarity := cosineSimilarity(queryVec, doc.Vector)
		if similarity < similarityThreshold {
			continue
		}
		age := now.Sub(doc.Ts)
		recency := recencyScore(age)
		freshBoost := 1.0
		if age < 24*time.Hour {
			freshBoost = 1.5
		}
		agePenalty := 1.0
		if expanded {
			agePenalty = max(0.1, recency)
		}
		relevance := similarity * recency * freshBoost * agePenalty
		results = append(results, scored{doc: doc, relevance: relevance, age: age})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].relevance > results[j].relevance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		return "no relevant knowledge found", nil
	}
	return formatDocuments(results), nil
}

// formatDocuments renders scored documents as the freshness-glyph-prefixed
// blocks shared by Search and CategoryDigest.
func formatDocuments(results []scored) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(fmt.Sprintf("%s [%s] %s (%s)\n%s",
			freshnessGlyph(r.age), r.doc.Category, r.doc.Source, r.doc.Ts.Format("2006-01-02"), r.doc.Content))
	}
	return sb.String()
}

// CategoryDigest returns the newest limit documents in category formatted
// the same way Search renders its results, serving as the "last cached
// digest per category" the scrape_news tool exposes (spec.md §4.7). It
// reuses KnowledgeDocument directly rather than maintaining a separate
// digest cache, since KnowledgeBase exclusively owns that data.
func (s *Store) CategoryDigest(ctx context.Context, category string, limit int) (string, error) {
	docs, err := s.ByCategory(ctx, category, limit)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "no relevant knowledge found", nil
	}

	now := time.Now()
	results := make([]scored, len(docs))
	for i, d := range docs {
		results[i] = scored{doc: d, age: now.Sub(d.Ts)}
	}
	return formatDocuments(results), nil
}

const similarityThreshold = 0.6

// loadCandidates restricts to the last 7 days; if that set is empty it
// expands to all-time and reports expanded=true (spec.md §4.4 step 2).
func (s *Store) loadCandidates(ctx context.Context, category string, now time.Time) ([]Document, bool, error) {
	cutoff := now.Add(-7 * 24 * time.Hour).Unix()

	docs, err := s.queryDocuments(ctx, category, &cutoff, 0)
	if err != nil {
		return nil, false, err
	}
	if len(docs) > 0 {
		return docs, false, nil
	}

	docs, err = s.queryDocuments(ctx, category, nil, 0)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

func (s *Store) queryDocuments(ctx context.Context, category string, sinceUnix *int64, limit int) ([]Document, error) {
	query := `SELECT id, content, vector, source, category, tags, ts, content_hash FROM knowledge_document WHERE deleted = 0`
	var args []interface{}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	if sinceUnix != nil {
		query += ` AND ts > ?`
		args = append(args, *sinceUnix)
	}
	query += ` ORDER BY ts DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var d Document
		var ts int64
		var tags string
		var vectorBlob []byte
		if err := rows.Scan(&d.ID, &d.Content, &vectorBlob, &d.Source, &d.Category, &tags, &ts, &d.ContentHash); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		vec, err := decodeVector(vectorBlob)
		if err != nil {
			return nil, fmt.Errorf("knowledge: decode vector: %w", err)
		}
		d.Vector = vec
		d.Ts = time.Unix(ts, 0)
		if tags != "" {
			d.Tags = strings.Split(tags, ",")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentDocuments returns the newest limit documents across all categories.
func (s *Store) RecentDocuments(ctx context.Context, limit int) ([]Document, error) {
	return s.queryDocuments(ctx, "", nil, limit)
}

// ByCategory returns the newest limit documents in category.
func (s *Store) ByCategory(ctx context.Context, category string, limit int) ([]Document, error) {
	return s.queryDocuments(ctx, category, nil, limit)
}

// ByTags returns documents whose tag set intersects tags, newest first.
func (s *Store) ByTags(ctx context.Context, tags []string, limit int) ([]Document, error) {
	all, err := s.queryDocuments(ctx, "", nil, 0)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	var out []Document
	for _, d := range all {
		for _, t := range d.Tags {
			if _, ok := want[t]; ok {
				out = append(out, d)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SearchContent does a plain substring search over content, newest first.
func (s *Store) SearchContent(ctx context.Context, substr string, limit int) ([]Document, error) {
	query := `SELECT id, content, vector, source, category, tags, ts, content_hash FROM knowledge_document
	          WHERE deleted = 0 AND content LIKE ? ORDER BY ts DESC`
	args := []interface{}{"%" + substr + "%"}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search content: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// CleanupOlderThan soft-deletes documents older than days and returns the
// count removed (spec.md §4.8 maintenance phase).
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE knowledge_document SET deleted = 1 WHERE deleted = 0 AND ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("knowledge: cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("knowledge: cleanup rows affected: %w", err)
	}
	return int(n), nil
}

// Stats summarizes the non-deleted document set.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	stats.Categories = make(map[string]int)

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(ts), MAX(ts) FROM knowledge_document WHERE deleted = 0`)
	var count int
	var minTs, maxTs sql.NullInt64
	if err := row.Scan(&count, &minTs, &maxTs); err != nil {
		return stats, fmt.Errorf("knowledge: stats: %w", err)
	}
	stats.TotalDocuments = count
	if minTs.Valid {
		stats.OldestTs = time.Unix(minTs.Int64, 0)
	}
	if maxTs.Valid {
		stats.NewestTs = time.Unix(maxTs.Int64, 0)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM knowledge_document WHERE deleted = 0 GROUP BY category`)
	if err != nil {
		return stats, fmt.Errorf("knowledge: stats by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return stats, fmt.Errorf("knowledge: scan category stats: %w", err)
		}
		stats.Categories[cat] = n
	}
	return stats, rows.Err()
}
