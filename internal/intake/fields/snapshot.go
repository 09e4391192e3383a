package fields

import (
	"sync"

	"kycflow/internal/intake/models"
)

// Snapshot is the last successfully persisted copy of the field store. It is
// only used to classify fields for display and is always replaced whole.
type Snapshot struct {
	mu   sync.RWMutex
	root models.Group
}

func NewSnapshot() *Snapshot {
	return &Snapshot{root: models.Group{}}
}

// Replace swaps in a new persisted root. Roots from Store.Root are immutable,
// so no copy is taken here.
func (s *Snapshot) Replace(root models.Group) {
	if root == nil {
		root = models.Group{}
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
}

func (s *Snapshot) Root() models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Confirmed reports whether path is non-empty either in the snapshot or in
// live.
func (s *Snapshot) Confirmed(live models.Group, path models.Path) bool {
	if filled(live, path) {
		return true
	}
	return filled(s.Root(), path)
}

// Matches reports whether live equals the persisted root.
func (s *Snapshot) Matches(live models.Group) bool {
	return s.Root().Equal(live)
}

func filled(root models.Group, path models.Path) bool {
	v, ok := root.Value(path)
	if !ok {
		return false
	}
	if _, isBool := v.Bool(); isBool {
		return true
	}
	return v.HasContent()
}
