package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/driftwatch/internal/store/sqlite"
)

func newTestProfileDB(t *testing.T) *ProfileStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	return NewProfileStore(db)
}

func TestProfileStore_GetMissing(t *testing.T) {
	p := newTestProfileDB(t)
	_, ok, err := p.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProfileStore_UpsertAndGet(t *testing.T) {
	p := newTestProfileDB(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "u1", UserProfile{Name: "Jamie", Location: "Denver"}))

	prof, ok, err := p.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Jamie", prof.Name)
	require.Equal(t, "Denver", prof.Location)
}

func TestProfileStore_UpsertMergesFacts(t *testing.T) {
	p := newTestProfileDB(t)
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "u1", UserProfile{Facts: map[string]string{"pet": "dog"}}))
	require.NoError(t, p.Upsert(ctx, "u1", UserProfile{Language: "en", Facts: map[string]string{"job": "teacher"}}))

	prof, ok, err := p.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "en", prof.Language)
	require.Equal(t, "dog", prof.Facts["pet"])
	require.Equal(t, "teacher", prof.Facts["job"])
}

func TestUserProfile_Summary(t *testing.T) {
	prof := UserProfile{Name: "Jamie", Location: "Denver"}
	s := prof.Summary()
	require.Contains(t, s, "Jamie")
	require.Contains(t, s, "Denver")
}

func TestUserProfile_Summary_NilReceiver(t *testing.T) {
	var prof *UserProfile
	require.Equal(t, "", prof.Summary())
}
