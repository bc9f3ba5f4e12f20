package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"honestledger/internal/model"
)

// FileStore keeps the snapshot in a local JSON file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.Snapshot{}, false, nil
	}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return model.Snapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("read state: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return snap, true, nil
}

// Save writes snap through a temporary file. The stored version must be
// exactly one below snap's.
func (s *FileStore) Save(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	current, ok, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if ok && current.Version+1 != snap.Version {
		return fmt.Errorf("save state v%d over v%d: %w", snap.Version, current.Version, ErrVersionConflict)
	}

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	if snap.UpdatedAt == "" {
		snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
