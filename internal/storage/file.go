package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the alert map in a single JSON file. Writes go to a
// temp file in the same directory followed by a rename, so a crash
// mid-write never leaves a truncated document behind.
type FileStore struct {
	path string
}

// NewFileStore builds a store rooted at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: file path is required")
	}
	return &FileStore{path: path}, nil
}

// Load reads the document; a missing file means no open alerts.
func (s *FileStore) Load(_ context.Context) (AlertState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return AlertState{}, nil
		}
		return nil, fmt.Errorf("read alert state: %w", err)
	}

	state := AlertState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode alert state %s: %w", s.path, err)
	}
	return state, nil
}

// Save replaces the document atomically.
func (s *FileStore) Save(_ context.Context, state AlertState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".alert-state-*")
	if err != nil {
		return fmt.Errorf("create temp alert state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write alert state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp alert state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace alert state: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

var _ AlertStateStore = (*FileStore)(nil)
