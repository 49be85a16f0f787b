// Package memory keeps archived pages in process memory.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/recipe-ingest/internal/archive"
)

// Store holds archived objects keyed by path.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ archive.Archive = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// PutObject copies the content and returns a memory:// URI.
func (s *Store) PutObject(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	s.objects[objectPath] = data
	s.mu.Unlock()
	return "memory://" + objectPath, nil
}

// Get returns a copy of the object at objectPath.
func (s *Store) Get(objectPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectPath]
	return append([]byte(nil), data...), ok
}

// Paths lists stored paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
