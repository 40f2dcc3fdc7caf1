package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource reads snapshots from a JSON document on every cycle. It
// is the built-in source for deployments where an external collector
// writes the current network state to disk.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the given file path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch re-reads the document so collector updates between cycles are
// picked up without a restart.
func (s *FileSource) Fetch(ctx context.Context) (Snapshots, error) {
	if err := ctx.Err(); err != nil {
		return Snapshots{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshots{}, fmt.Errorf("read snapshots: %w", err)
	}

	var snaps Snapshots
	if err := json.Unmarshal(data, &snaps); err != nil {
		return Snapshots{}, fmt.Errorf("decode snapshots: %w", err)
	}
	return snaps, nil
}
