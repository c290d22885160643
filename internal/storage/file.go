package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"minDex/internal/model"
)

// FileStateStore stores the pool snapshot in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Snapshot  model.PoolSnapshot `json:"snapshot"`
	UpdatedAt string             `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.PoolSnapshot{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.Snapshot, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	rec := stateRecord{
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
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
