package mediastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "media"))
	require.NoError(t, err)

	path, err := s.Save(context.Background(), "clip.mp3", []byte("audio-bytes"))
	require.NoError(t, err)

	data, err := s.Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []byte("audio-bytes"), data)
}

func TestFSStore_SaveSanitizesNameTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "media"))
	require.NoError(t, err)

	path, err := s.Save(context.Background(), "../escape.txt", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "media", "escape.txt"), path)
}
