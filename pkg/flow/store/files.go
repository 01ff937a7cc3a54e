package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"proxycast-hq/flowscope/pkg/flow"
)

// FileBackend persists one JSON file per flow alongside the in-memory index.
// All methods are safe for concurrent use; callers must not hold the store's
// structural lock while invoking them.
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates (if needed) the backing directory and returns a
// backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create flow backing directory %q: %w", dir, err)
	}
	return &FileBackend{
		dir:    dir,
		logger: slog.Default().With("component", "flow.store.files"),
	}, nil
}

// Path returns the backing file path for a flow id.
func (fb *FileBackend) Path(id string) string {
	return filepath.Join(fb.dir, id+".json")
}

// Write serializes the record to its backing file.
func (fb *FileBackend) Write(record *flow.FlowRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode flow %s: %w", record.ID, err)
	}
	if err := os.WriteFile(fb.Path(record.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write flow file for %s: %w", record.ID, err)
	}
	return nil
}

// Remove deletes the backing file for a flow id and returns the bytes freed.
// A missing file is not an error: flows created before the backend was
// enabled have none.
func (fb *FileBackend) Remove(id string) (int64, error) {
	path := fb.Path(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat flow file for %s: %w", id, err)
	}
	size := info.Size()
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("failed to remove flow file for %s: %w", id, err)
	}
	return size, nil
}

// TotalSize returns the cumulative size of all backing files.
func (fb *FileBackend) TotalSize() (int64, error) {
	var total int64
	entries, err := os.ReadDir(fb.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read flow backing directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
