package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded draft store for tests and single-node runs.
type InMemory struct {
	mu     sync.Mutex
	drafts map[key]*models.Draft
}

func NewInMemory() *InMemory {
	return &InMemory{drafts: make(map[key]*models.Draft)}
}

func (s *InMemory) FindDraft(_ context.Context, userID id.UserID, role id.Role) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key{userID, role}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

// Execute runs fn on the stored draft, or on a fresh not_started draft when
// none exists, and stores the result if fn succeeds. The lock is held for the
// whole callback so concurrent saves for one key are serialized.
func (s *InMemory) Execute(ctx context.Context, userID id.UserID, role id.Role, fn MutateFunc) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{userID, role}
	working := models.NewDraft(userID, role, time.Time{})
	if cur, ok := s.drafts[k]; ok {
		working = cur.Clone()
	}
	if err := fn(ctx, working); err != nil {
		return nil, err
	}
	s.drafts[k] = working.Clone()
	return working, nil
}

// ListByStatus returns up to limit drafts in status, oldest update first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.Draft, error) {
	s.mu.Lock()
	var out []*models.Draft
	for _, d := range s.drafts {
		if d.Status == status {
			out = append(out, d.Clone())
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *models.Draft) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
