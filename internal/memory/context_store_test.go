package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubArchiver struct {
	calls []string
	err   error
}

func (a *stubArchiver) SummarizeAndArchive(ctx context.Context, userID string, messages []Message) error {
	a.calls = append(a.calls, userID)
	return a.err
}

func TestContextStore_AppendAndHistory(t *testing.T) {
	cs := NewContextStore(time.Hour, 5, nil, nil, "")
	ctx := context.Background()

	cs.Append(ctx, "u1", RoleUser, "hello")
	cs.Append(ctx, "u1", RoleAssistant, "hi there")

	hist := cs.History("u1")
	require.Len(t, hist, 2)
	require.Equal(t, "hello", hist[0].Content)
	require.Equal(t, "hi there", hist[1].Content)
}

func TestContextStore_History_FiltersExpired(t *testing.T) {
	cs := NewContextStore(10*time.Millisecond, 5, nil, nil, "")
	ctx := context.Background()

	cs.Append(ctx, "u1", RoleUser, "old message")
	time.Sleep(30 * time.Millisecond)

	require.Empty(t, cs.History("u1"))
}

func TestContextStore_FastInterestsAppliedInline(t *testing.T) {
	cs := NewContextStore(time.Hour, 5, nil, nil, "")
	ctx := context.Background()

	cs.Append(ctx, "u1", RoleUser, "I love coding in Go")
	require.Equal(t, []string{"tech"}, cs.Interests("u1"))
}

func TestContextStore_DeepAnalysisFiresEveryNMessages(t *testing.T) {
	completer := stubCompleter{resp: `["science"]`}
	cs := NewContextStore(time.Hour, 2, completer, nil, "")
	ctx := context.Background()

	cs.Append(ctx, "u1", RoleUser, "msg one")
	cs.Append(ctx, "u1", RoleUser, "msg two") // triggers deep analysis at interval 2
	cs.WaitDeepAnalysis()

	require.Equal(t, []string{"science"}, cs.Interests("u1"))
}

func TestContextStore_CleanupExpired_ArchivesAndEvicts(t *testing.T) {
	cs := NewContextStore(10*time.Millisecond, 5, nil, nil, "")
	ctx := context.Background()

	cs.Append(ctx, "u1", RoleUser, "one")
	cs.Append(ctx, "u1", RoleAssistant, "two")
	cs.Append(ctx, "u1", RoleUser, "three")

	archiver := &stubArchiver{}
	cs.archiver = archiver

	time.Sleep(30 * time.Millisecond)
	n := cs.CleanupExpired(ctx)

	require.Equal(t, 1, n)
	require.Equal(t, []string{"u1"}, archiver.calls)
	require.Empty(t, cs.ActiveUsers())
}

func TestContextStore_SnapshotRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context_state.json")

	cs := NewContextStore(time.Hour, 5, nil, nil, path)
	ctx := context.Background()
	cs.Append(ctx, "u1", RoleUser, "tell me about tech news")

	reloaded := NewContextStore(time.Hour, 5, nil, nil, path)
	require.Equal(t, []string{"u1"}, reloaded.ActiveUsers())
	require.Len(t, reloaded.History("u1"), 1)
}
