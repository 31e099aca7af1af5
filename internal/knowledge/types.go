// Package knowledge implements the KnowledgeBase from spec.md §4.4: a
// vector store of documents learned by the Browser, searched with a
// recency-weighted RAG ranking and deduplicated by content hash.
package knowledge

import "time"

// Document is one learned knowledge document (spec.md §3 KnowledgeDocument).
type Document struct {
	ID          string
	Content     string
	Vector      []float32
	Source      string
	Category    string
	Tags        []string
	Ts          time.Time
	ContentHash string
}

// Stats summarizes the store for operational visibility.
type Stats struct {
	TotalDocuments int
	OldestTs       time.Time
	NewestTs       time.Time
	Categories     map[string]int
}

const maxContentLen = 2000

// freshnessGlyph is the protocol signal embedded in every formatted Search
// result (spec.md §4.4, §4.8): 🆕 for <24h, 📅 for <7d, 📜 otherwise. Other
// components (the proactive accumulate phase) detect freshness by scanning
// the formatted string for 🆕 rather than re-querying timestamps.
func freshnessGlyph(age time.Duration) string {
	switch {
	case age < 24*time.Hour:
		return "🆕"
	case age < 7*24*time.Hour:
		return "📅"
	default:
		return "📜"
	}
}

// recencyScore is the stepwise decay curve from spec.md §4.4.
func recencyScore(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 3:
		return 0.8
	case days <= 7:
		return 0.6
	case days <= 14:
		return 0.3
	case days <= 30:
		return 0.1
	default:
		return 0.05
	}
}
