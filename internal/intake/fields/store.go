// Package fields holds the wizard's working answers and the last persisted
// copy of them.
package fields

import (
	"sync"

	"kycflow/internal/intake/models"
)

// Store is the path-addressed field store. Every Set swaps in a new root
// produced by copy-on-write along the path, so a root returned by Root stays
// valid and unchanged however many edits follow.
type Store struct {
	mu      sync.RWMutex
	root    models.Group
	version uint64
}

func NewStore() *Store {
	return &Store{root: models.Group{}}
}

// Set writes exactly one leaf and returns the new store version. Invalid
// paths are ignored.
func (s *Store) Set(path models.Path, v models.Value) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !path.Valid() {
		return s.version
	}
	s.root = s.root.With(path, v)
	s.version++
	return s.version
}

// Get returns the value at path; unknown paths report false.
func (s *Store) Get(path models.Path) (models.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.Value(path)
}

// Root returns the current immutable root.
func (s *Store) Root() models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Version increases on every accepted edit or merge.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Merge fills keys absent locally from remote without touching local edits.
func (s *Store) Merge(remote models.Group) {
	if len(remote) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = s.root.FillMissing(remote.Clone())
	s.version++
}
