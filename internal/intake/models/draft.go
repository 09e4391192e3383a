package models

import (
	"time"

	id "kycflow/pkg/domain"
)

// Draft is the intake record for one (user, role) pair. The KYC service is
// the system of record; the wizard holds a working copy.
//
// Invariants:
//   - ProgressPercent is derived from Sections and is recomputed on every
//     write; the stored value is informational only
//   - Status only moves along Status.CanTransitionTo
type Draft struct {
	UserID          id.UserID `json:"user_id"`
	Role            id.Role   `json:"role"`
	Sections        Group     `json:"sections"`
	Status          Status    `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewDraft starts an empty draft.
func NewDraft(userID id.UserID, role id.Role, now time.Time) *Draft {
	return &Draft{
		UserID:    userID,
		Role:      role,
		Sections:  Group{},
		Status:    StatusNotStarted,
		UpdatedAt: now,
	}
}

// SaveDraftRequest is the payload the wizard sends on every persist.
// ResolvedAttachmentURLs lists URLs produced by uploads in this persist,
// keyed by dotted slot path; they are also written into Sections.
type SaveDraftRequest struct {
	Role                   id.Role           `json:"role"`
	Status                 Status            `json:"status"`
	Sections               Group             `json:"sections"`
	ProgressPercent        int               `json:"progress_percent"`
	ResolvedAttachmentURLs map[string]string `json:"resolved_attachment_urls,omitempty"`
}

// ReviewDecision is a reviewer outcome for a submitted draft.
type ReviewDecision struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// UploadResult is returned by the upload endpoint.
type UploadResult struct {
	URL string `json:"url"`
}

// Clone returns a deep copy so stores never share Sections with callers.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.Sections = d.Sections.Clone()
	return &c
}
