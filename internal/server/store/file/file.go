// Package file implements the document store as one JSON file per collection.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps each collection in {dir}/{collection}.json.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a file store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load reads a collection into out. A missing file leaves out untouched; a
// corrupt file is logged and treated as empty rather than failing the request.
func (s *Store) Load(_ context.Context, collection string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(collection)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", collection, err)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("corrupt collection file, treating as empty",
			"collection", collection,
			"error", err,
		)
		return nil
	}
	return nil
}

// Save rewrites the collection file wholesale.
func (s *Store) Save(_ context.Context, collection string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", collection, err)
	}
	if err := os.WriteFile(s.path(collection), encoded, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", collection, err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *Store) Close() {}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}
