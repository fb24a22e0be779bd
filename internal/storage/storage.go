// Package storage provides atomic, per-path-serialized file-based JSON storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage provides file-based JSON storage. Every mutation against a given
// path is funnelled through that path's actor, so concurrent writers to the
// same file are strictly FIFO-ordered without a shared mutex serialising
// unrelated paths (spec: "per-file serialisation of writes").
type Storage struct {
	basePath string
	actors   *actorRegistry
}

// New creates a new Storage instance.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		actors:   newActorRegistry(),
	}
}

// pathToFile converts a path slice to a file path.
func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

// pathToDir converts a path slice to a directory path.
func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get retrieves a value from storage.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

// Put stores a value in storage, queued behind the path's actor, and
// blocks until the write has committed.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)
	return s.actors.get(filePath).submit(func() error {
		return writeAtomic(filePath, v)
	})
}

// PutAsync enqueues a write against path without waiting for it to
// execute. Callers that cannot block on journal work (e.g. the stream
// processor debouncing part updates) use this; errors are not observable
// to the caller and are the journal's responsibility to log.
func (s *Storage) PutAsync(path []string, v any) {
	filePath := s.pathToFile(path)
	s.actors.get(filePath).submitAsync(func() error {
		return writeAtomic(filePath, v)
	})
}

func writeAtomic(filePath string, v any) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes a value from storage, queued behind the path's actor.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.pathToFile(path)
	return s.actors.get(filePath).submit(func() error {
		if err := os.Remove(filePath); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return nil
	})
}

// List returns all items at a path.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}

	return items, nil
}

// Scan iterates over all items at a path.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Nothing to scan
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		filePath := filepath.Join(dirPath, name)
		data, err := os.ReadFile(filePath)
		if err != nil {
			continue // Skip files that can't be read
		}

		key := strings.TrimSuffix(name, ".json")
		if err := fn(key, json.RawMessage(data)); err != nil {
			return err
		}
	}

	return nil
}

// Exists checks if a path exists.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	filePath := s.pathToFile(path)
	_, err := os.Stat(filePath)
	return err == nil
}

// BasePath returns the storage root directory.
func (s *Storage) BasePath() string {
	return s.basePath
}
