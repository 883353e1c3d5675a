package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records how far a replay got, keyed by the snapshot clock.
type Checkpoint struct {
	LastProcessedTS uint64    `json:"last_processed_ts"`
	SavedAt         time.Time `json:"saved_at"`
}

// CheckpointStore persists replay progress as a small JSON file. Writes go
// through a temp file and rename so a crash never leaves a torn checkpoint.
// A disabled store loads nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled}
}

// Load returns the stored checkpoint and whether one exists. A missing file
// is a clean start, not an error.
func (s *CheckpointStore) Load() (Checkpoint, bool, error) {
	var cp Checkpoint
	if !s.enabled {
		return cp, false, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, false, nil
	}
	if err != nil {
		return cp, false, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, false, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	return cp, true, nil
}

// Save atomically replaces the checkpoint with the given snapshot timestamp.
func (s *CheckpointStore) Save(lastProcessed uint64) error {
	if !s.enabled {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(Checkpoint{
		LastProcessedTS: lastProcessed,
		SavedAt:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("promote checkpoint: %w", err)
	}
	return nil
}
