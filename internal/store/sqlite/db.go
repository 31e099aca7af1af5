// Package sqlite is the embedded relational store backing SummaryStore,
// HistoryStore, KnowledgeBase and the processed-message/user-profile
// tables from spec.md §6. It uses the pure-Go modernc.org/sqlite driver
// (no cgo), the same driver the teacher lists for standalone-mode storage.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Open opens (and migrates) the SQLite database at path. WAL mode and a
// normal sync level match the pragmas used by the pack's other embedded
// SQLite stores (liliang-cn/sqvect).
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across connections

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_summary (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			ts INTEGER NOT NULL,
			context_hash TEXT NOT NULL UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summary_user ON conversation_summary(user_id, ts DESC)`,

		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user_ts ON history(user_id, ts DESC)`,

		`CREATE TABLE IF NOT EXISTS knowledge_document (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			vector BLOB NOT NULL,
			source TEXT NOT NULL,
			category TEXT NOT NULL,
			tags TEXT NOT NULL,
			ts INTEGER NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_ts ON knowledge_document(ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_hash ON knowledge_document(content_hash)`,

		`CREATE TABLE IF NOT EXISTS processed_message (
			message_id TEXT PRIMARY KEY,
			processed_at INTEGER NOT NULL,
			sender TEXT NOT NULL,
			type TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_profile (
			user_id TEXT PRIMARY KEY,
			name TEXT,
			location TEXT,
			language TEXT,
			facts TEXT,
			last_asked INTEGER
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
