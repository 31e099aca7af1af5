// Package mediastore is the default ports.MediaStore: files land under a
// single plain directory (cmd/driftwatch roots it at data/media). Core
// saves synthesized voice replies through it; downloaded images, inbound
// voice clips and screenshots are not persisted.
package mediastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore persists media to a directory on the local filesystem.
type FSStore struct {
	dir string
}

// New constructs an FSStore rooted at dir, creating it if necessary.
func New(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mediastore: create dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Save writes content under name and returns its path, implementing
// ports.MediaStore.
func (s *FSStore) Save(ctx context.Context, name string, content []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("mediastore: write %s: %w", name, err)
	}
	return path, nil
}

// Load reads content back from a path previously returned by Save.
func (s *FSStore) Load(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mediastore: read %s: %w", path, err)
	}
	return data, nil
}
