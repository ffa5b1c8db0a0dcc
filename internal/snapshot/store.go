// Package snapshot persists the latest collection result to disk so the web
// UI and API can serve it without touching the switch again.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dagolovach/ise-session-manager/internal/model"
)

// ErrNoSnapshot is returned by Load when no collection run has been persisted
// yet.
var ErrNoSnapshot = errors.New("no snapshot recorded yet")

// Store persists one CollectionResult at a fixed path. Every write replaces
// the previous run; there is no history.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a snapshot store writing to path. The parent directory is
// created if it does not exist.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Store{
		path:   path,
		logger: logger,
	}, nil
}

// Dir returns the directory holding the snapshot file.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Write replaces the snapshot with result. The data goes through a temp file
// in the same directory and a rename, so a concurrent reader sees either the
// previous snapshot or the new one, never a partial write.
func (s *Store) Write(result *model.CollectionResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Info("Snapshot written",
		"path", s.path,
		"run_id", result.RunID,
		"flagged", result.Flagged())
	return nil
}

// Load reads the latest snapshot. It returns ErrNoSnapshot when no run has
// been written yet.
func (s *Store) Load() (*model.CollectionResult, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var result model.CollectionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return &result, nil
}
