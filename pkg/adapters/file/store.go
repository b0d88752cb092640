// Package file provides a SagaStore that keeps one JSON document per saga on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// ErrInvalidID is returned for saga IDs that cannot be used as file names.
var ErrInvalidID = errors.New("invalid saga id for file store")

// Store implements ports.SagaStore using the local filesystem.
// It stores sagas as JSON files in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".sagaflow/sagas".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".sagaflow", "sagas")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(sagaID string) (string, error) {
	if sagaID == "" || strings.ContainsAny(sagaID, `/\`) || sagaID == "." || sagaID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, sagaID)
	}
	return filepath.Join(s.BasePath, sagaID+".json"), nil
}

// Save persists the record to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, saga *domain.Saga) error {
	destPath, err := s.path(saga.ID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure saga directory: %w", err)
	}

	data, err := json.MarshalIndent(saga, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal saga: %w", err)
	}

	// Same directory as the destination, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+saga.ID+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op after a successful rename
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing saga file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to saga file: %w", err)
	}

	return nil
}

// Load retrieves the record from its JSON file.
func (s *Store) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	filePath, err := s.path(sagaID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSagaNotFound
		}
		return nil, fmt.Errorf("failed to read saga file: %w", err)
	}

	var saga domain.Saga
	if err := json.Unmarshal(data, &saga); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saga: %w", err)
	}

	return &saga, nil
}

// Delete removes the saga file.
func (s *Store) Delete(ctx context.Context, sagaID string) error {
	filePath, err := s.path(sagaID)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete saga file: %w", err)
	}

	return nil
}

// List returns all stored saga IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sagas: %w", err)
	}

	var sagas []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		sagas = append(sagas, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(sagas)

	return sagas, nil
}
