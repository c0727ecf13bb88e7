package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileSystemStore implements KV using one file per key under a root directory
type FileSystemStore struct {
	rootDir string
	mutex   sync.Mutex
}

// NewFileSystemStore creates a new filesystem-based store
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(rootDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

// keys may contain ':' and '/', so file names are hex encoded
func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.rootDir, hex.EncodeToString([]byte(key))+".json")
}

// Get implements KV.Get
func (s *FileSystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return data, nil
}

// Set implements KV.Set. The value is written to a temp file and renamed
// so a crash never leaves a half written record behind.
func (s *FileSystemStore) Set(ctx context.Context, key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	target := s.path(key)
	tmp, err := os.CreateTemp(s.rootDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move key file into place: %w", err)
	}
	return nil
}

// Delete implements KV.Delete
func (s *FileSystemStore) Delete(ctx context.Context, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

// HealthCheck verifies the root directory is still accessible
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("root directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", s.rootDir)
	}
	return nil
}

// Close implements KV.Close
func (s *FileSystemStore) Close() error {
	return nil
}
