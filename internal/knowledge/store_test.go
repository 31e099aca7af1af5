package knowledge

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
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

// wordBucketEmbedder is a deterministic stand-in embedder: documents that
// share vocabulary land close together in cosine space, which is all the
// ranking logic under test needs.
type wordBucketEmbedder struct{ dims int }

func (e wordBucketEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		var sum int
		for _, r := range w {
			sum += int(r)
		}
		vec[sum%e.dims]++
	}
	return vec, nil
}

func TestStore_Learn_RejectsShortContent(t *testing.T) {
	s := New(openTestDB(t), wordBucketEmbedder{dims: 16})
	err := s.Learn(context.Background(), "short", "src", nil, "tech", time.Now(), "h1")
	require.Error(t, err)
}

func TestStore_Learn_DedupsByContentHash(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	require.NoError(t, s.Learn(ctx, "Go concurrency primitives explained in depth", "src1", []string{"tech"}, "tech", time.Now(), "dup"))
	require.NoError(t, s.Learn(ctx, "a totally different article body here", "src2", []string{"tech"}, "tech", time.Now(), "dup"))

	docs, err := s.RecentDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "src1", docs[0].Source)
}

func TestStore_HasContentHash(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	ok, err := s.HasContentHash(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Learn(ctx, "Go concurrency primitives explained in depth", "src1", nil, "tech", time.Now(), "h1"))

	ok, err = s.HasContentHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_Search_RanksBySimilarityAndRecency(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Learn(ctx, "Go concurrency channels goroutines scheduler runtime", "src1", []string{"tech"}, "tech", now, "h1"))
	require.NoError(t, s.Learn(ctx, "completely unrelated gardening tips for tomatoes", "src2", []string{"garden"}, "garden", now, "h2"))

	result, err := s.Search(ctx, "Go concurrency channels goroutines", 3, "")
	require.NoError(t, err)
	require.Contains(t, result, "src1")
	require.NotContains(t, result, "src2")
	require.Contains(t, result, "🆕") // learned just now
}

func TestStore_Search_NoMatches(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})

	result, err := s.Search(context.Background(), "anything", 3, "")
	require.NoError(t, err)
	require.Equal(t, "no relevant knowledge found", result)
}

func TestStore_CleanupOlderThan(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, s.Learn(ctx, "an old document about space exploration", "src1", nil, "science", old, "old"))
	require.NoError(t, s.Learn(ctx, "a fresh document about space exploration", "src2", nil, "science", time.Now(), "fresh"))

	n, err := s.CleanupOlderThan(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	docs, err := s.RecentDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "src2", docs[0].Source)
}

func TestStore_ByTagsAndByCategory(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	require.NoError(t, s.Learn(ctx, "an article with tech and ai tags present", "src1", []string{"tech", "ai"}, "tech", time.Now(), "h1"))
	require.NoError(t, s.Learn(ctx, "an article with sports tags only present", "src2", []string{"sports"}, "sports", time.Now(), "h2"))

	byTag, err := s.ByTags(ctx, []string{"ai"}, 10)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	require.Equal(t, "src1", byTag[0].Source)

	byCat, err := s.ByCategory(ctx, "sports", 10)
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	require.Equal(t, "src2", byCat[0].Source)
}

func TestStore_Stats(t *testing.T) {
	db := openTestDB(t)
	s := New(db, wordBucketEmbedder{dims: 16})
	ctx := context.Background()

	require.NoError(t, s.Learn(ctx, "an article about rockets and orbital launches", "src1", nil, "science", time.Now(), "h1"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalDocuments)
	require.Equal(t, 1, stats.Categories["science"])
}
