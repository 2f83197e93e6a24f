package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// Validate that FileStorage implements the Storage interface
var _ Storage = &FileStorage{}

// FileStorage keeps the store table in a single file on disk.
type FileStorage struct {
	path   string
	mode   fs.FileMode
	logger log.Logger
}

// NewFileStorage creates a file-backed storage for path.
func NewFileStorage(path string, logger log.Logger) *FileStorage {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &FileStorage{
		path:   path,
		mode:   0o644,
		logger: logger.WithComponent("store"),
	}
}

// Location returns the file path.
func (s *FileStorage) Location() string {
	return s.path
}

// Read returns the file content.
func (s *FileStorage) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.WrapError(types.KindNotFound, "read", err, "store file not found: %s", s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	return data, nil
}

// Write overwrites the file in place.
func (s *FileStorage) Write(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, s.mode); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

// AtomicReplace writes data to a temporary file in the same directory and
// renames it over the store file.
func (s *FileStorage) AtomicReplace(ctx context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove temp file", log.Str("path", tmpName), log.Err(rmErr))
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to set mode on temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	s.logger.Debug("Store file replaced", log.Str("path", s.path), log.Int("bytes", len(data)))
	return nil
}

// Remove deletes the store file.
func (s *FileStorage) Remove(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove store file: %w", err)
	}
	s.logger.Debug("Store file removed", log.Str("path", s.path))
	return nil
}
