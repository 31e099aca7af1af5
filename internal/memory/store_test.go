package memory

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/driftwatch/internal/store/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftwatch.db")
	db, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSummaryStore_StoreAndRecent(t *testing.T) {
	db := openTestDB(t)
	ss := NewSummaryStore(db, nil, 10)
	ctx := context.Background()

	require.NoError(t, ss.Store(ctx, Summary{ID: "s1", UserID: "u1", Summary: "talked about Go", ContextHash: "h1"}))
	require.NoError(t, ss.Store(ctx, Summary{ID: "s2", UserID: "u1", Summary: "talked about rod", ContextHash: "h2"}))

	recent, err := ss.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestSummaryStore_DuplicateContextHashIsNoop(t *testing.T) {
	db := openTestDB(t)
	ss := NewSummaryStore(db, nil, 10)
	ctx := context.Background()

	require.NoError(t, ss.Store(ctx, Summary{ID: "s1", UserID: "u1", Summary: "first", ContextHash: "dup"}))
	require.NoError(t, ss.Store(ctx, Summary{ID: "s2", UserID: "u1", Summary: "second", ContextHash: "dup"}))

	recent, err := ss.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "first", recent[0].Summary)
}

func TestSummaryStore_TrimsToMaxPerUser(t *testing.T) {
	db := openTestDB(t)
	ss := NewSummaryStore(db, nil, 2)
	ctx := context.Background()

	for i, hash := range []string{"h1", "h2", "h3"} {
		require.NoError(t, ss.Store(ctx, Summary{ID: hash, UserID: "u1", Summary: "s", ContextHash: hash}))
		_ = i
	}

	recent, err := ss.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestSummaryStore_SummarizeAndArchive_DedupsOnHash(t *testing.T) {
	db := openTestDB(t)
	completer := stubCompleter{resp: "a short summary"}
	ss := NewSummaryStore(db, completer, 10)
	ctx := context.Background()

	msgs := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}

	require.NoError(t, ss.SummarizeAndArchive(ctx, "u1", msgs))
	require.NoError(t, ss.SummarizeAndArchive(ctx, "u1", msgs)) // same transcript, same hash

	recent, err := ss.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestHistoryStore_StoreAndQuery(t *testing.T) {
	db := openTestDB(t)
	hs := NewHistoryStore(db)
	ctx := context.Background()

	require.NoError(t, hs.Store(ctx, HistoryEntry{UserID: "u1", Role: RoleUser, Content: "hi"}))
	require.NoError(t, hs.Store(ctx, HistoryEntry{UserID: "u1", Role: RoleAssistant, Content: "hello", MessageType: MessageTypeText}))

	entries, err := hs.Query(ctx, HistoryQuery{UserID: "u1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "hello", entries[0].Content) // newest first
}

func TestHistoryStore_Query_FiltersByKeywordAndSince(t *testing.T) {
	db := openTestDB(t)
	hs := NewHistoryStore(db)
	ctx := context.Background()

	require.NoError(t, hs.Store(ctx, HistoryEntry{UserID: "u1", Role: RoleUser, Content: "talked about rust", Ts: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, hs.Store(ctx, HistoryEntry{UserID: "u1", Role: RoleUser, Content: "talked about go", Ts: time.Now()}))

	entries, err := hs.Query(ctx, HistoryQuery{UserID: "u1", Keywords: []string{"go"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "talked about go", entries[0].Content)

	entries, err = hs.Query(ctx, HistoryQuery{UserID: "u1", Since: time.Now().Add(-time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "talked about go", entries[0].Content)
}

func TestHistoryStore_Metadata_Roundtrip(t *testing.T) {
	db := openTestDB(t)
	hs := NewHistoryStore(db)
	ctx := context.Background()

	require.NoError(t, hs.Store(ctx, HistoryEntry{
		UserID:   "u1",
		Role:     RoleUser,
		Content:  "a photo",
		Metadata: map[string]string{"mimeType": "image/png"},
	}))

	entries, err := hs.Query(ctx, HistoryQuery{UserID: "u1", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, "image/png", entries[0].Metadata["mimeType"])
}
