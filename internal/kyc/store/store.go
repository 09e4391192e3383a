// Package store persists intake drafts keyed by (user, role).
//
// Every implementation returns sentinel.ErrNotFound for a missing draft and
// hands out copies, never shared references.
package store

import (
	"context"
	"fmt"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
)

// MutateFunc edits a draft in place. A non-nil error aborts the write. ctx
// carries the store's transaction when there is one.
type MutateFunc func(ctx context.Context, draft *models.Draft) error

type key struct {
	user id.UserID
	role id.Role
}

func (k key) String() string {
	return fmt.Sprintf("%s:%s", k.user, k.role)
}
