package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the slot at <dir>/<slot>.json and replaces it atomically.
type FileStore struct {
	path string
}

func NewFileStore(dir, slot string) (*FileStore, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" || strings.ContainsAny(slot, `/\`) || slot == "." || slot == ".." {
		return nil, fmt.Errorf("invalid cache slot name %q", slot)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, slot+".json")}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache slot: %w", err)
	}
	return data, nil
}

func (s *FileStore) Write(_ context.Context, data []byte) error {
	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write cache slot: %w", err)
	}
	_, writeErr := f.Write(data)
	syncErr := f.Sync()
	closeErr := f.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write cache slot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace cache slot: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
