// Package memory provides an in-memory recipe store for development and tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/JakeFAU/recipe-ingest/internal/recipe"
	"github.com/JakeFAU/recipe-ingest/internal/store"
)

// Store keeps recipes keyed by normalized source URL.
type Store struct {
	mu     sync.RWMutex
	rows   map[string]recipe.NormalizedRecipe
	nextID int
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{rows: make(map[string]recipe.NormalizedRecipe)}
}

// Save stores rec, replacing any record with the same normalized URL.
func (s *Store) Save(_ context.Context, rec recipe.NormalizedRecipe) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows[store.NormalizeURL(rec.SourceURL)] = rec
	return strconv.Itoa(s.nextID), nil
}

// Exists reports whether normalizedURL has been saved.
func (s *Store) Exists(_ context.Context, normalizedURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[normalizedURL]
	return ok, nil
}

// Count returns the number of stored recipes.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Get returns the record stored for normalizedURL.
func (s *Store) Get(normalizedURL string) (recipe.NormalizedRecipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[normalizedURL]
	return rec, ok
}
