package browser

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// state is the on-disk snapshot shape, persisted with the same
// temp-file-then-rename pattern the teacher's session manager uses.
type state struct {
	Favorites   []FavoriteHub                `json:"favorites"`
	LinkTracker map[string]LinkTrackingEntry `json:"linkTracker"`
}

func loadState(path string) state {
	s := state{LinkTracker: make(map[string]LinkTrackingEntry)}
	if path == "" {
		return s
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("browser: state load failed", "error", err)
		return state{LinkTracker: make(map[string]LinkTrackingEntry)}
	}
	if s.LinkTracker == nil {
		s.LinkTracker = make(map[string]LinkTrackingEntry)
	}
	return s
}

func persistState(path string, s state, mu *sync.Mutex) {
	if path == "" {
		return
	}
	mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	mu.Unlock()
	if err != nil {
		slog.Warn("browser: state marshal failed", "error", err)
		return
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("browser: state mkdir failed", "error", err)
		return
	}

	tmp, err := os.CreateTemp(dir, "browser_state-*.tmp")
	if err != nil {
		slog.Warn("browser: state tempfile failed", "error", err)
		return
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Warn("browser: state write failed", "error", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		slog.Warn("browser: state sync failed", "error", err)
		return
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		slog.Warn("browser: state rename failed", "error", err)
		return
	}
	cleanup = false
}
