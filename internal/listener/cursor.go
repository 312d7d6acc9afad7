package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// FileCursorStore keeps every listener's cursor in one JSON file.
type FileCursorStore struct {
	path string
	mu   sync.Mutex
}

var _ storage.CursorStore = (*FileCursorStore)(nil)

func NewFileCursorStore(path string) *FileCursorStore {
	return &FileCursorStore{path: path}
}

func (c *FileCursorStore) LoadCursor(_ context.Context, name string) (model.Cursor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cursors, err := c.read()
	if err != nil {
		return model.Cursor{}, false, err
	}
	cur, ok := cursors[name]
	return cur, ok, nil
}

func (c *FileCursorStore) SaveCursor(_ context.Context, name string, cursor model.Cursor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cursors, err := c.read()
	if err != nil {
		return err
	}
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}
	cursors[name] = cursor

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cursor dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursors: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write cursor tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename cursor file: %w", err)
	}
	return nil
}

func (c *FileCursorStore) read() (map[string]model.Cursor, error) {
	cursors := make(map[string]model.Cursor)

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cursors, nil
		}
		return nil, fmt.Errorf("stat cursor file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("cursor path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read cursor file: %w", err)
	}
	if len(data) == 0 {
		return cursors, nil
	}
	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("parse cursor file: %w", err)
	}
	return cursors, nil
}
