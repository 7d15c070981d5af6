package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ozzus/ring-exporter/internal/domain"
)

// SnapshotRepository persists the node registry between restarts so the
// process can serve filtered queries before the directory service answers.
type SnapshotRepository interface {
	Save(snapshot domain.Snapshot) error
	Load() (*domain.Snapshot, error)
}

// FileSnapshotRepository stores the snapshot as a single JSON file. Writes
// go to a temp file in the same directory followed by a rename, so a reader
// (or a crash) never observes a partial snapshot.
type FileSnapshotRepository struct {
	path string
	log  *slog.Logger
}

func NewFileSnapshotRepository(path string, log *slog.Logger) *FileSnapshotRepository {
	return &FileSnapshotRepository{path: path, log: log}
}

func (r *FileSnapshotRepository) Save(snapshot domain.Snapshot) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := json.NewEncoder(tmp).Encode(snapshot); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	r.log.Debug("persisted node snapshot", "path", r.path, "nodes", len(snapshot.Nodes))
	return nil
}

// Load returns the newest complete snapshot. A missing, unreadable or
// corrupt file is a cache miss, never an error: the caller falls back to
// the directory service.
func (r *FileSnapshotRepository) Load() (*domain.Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		r.log.Warn("snapshot read failed", "path", r.path, "error", err)
		return nil, nil
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		r.log.Warn("snapshot is corrupt, ignoring", "path", r.path, "error", err)
		return nil, nil
	}

	r.log.Info("loaded node snapshot", "path", r.path, "nodes", len(snapshot.Nodes), "saved_at", snapshot.SavedAt)
	return &snapshot, nil
}
