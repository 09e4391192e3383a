package audit

import (
	"context"
	"time"

	id "kycflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory weight:
	// submissions and review outcomes.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers access violations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity such as autosaves.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID names who acted when it was not the user, e.g. a reviewer.
	ActorID string
}

type AuditEvent string

const (
	EventDraftSaved         AuditEvent = "kyc_draft_saved"
	EventDraftSubmitted     AuditEvent = "kyc_draft_submitted"
	EventDraftReviewed      AuditEvent = "kyc_draft_reviewed"
	EventAttachmentUploaded AuditEvent = "kyc_attachment_uploaded"
	EventAccessDenied       AuditEvent = "kyc_access_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDraftSubmitted:     CategoryCompliance,
	EventDraftReviewed:      CategoryCompliance,
	EventAccessDenied:       CategorySecurity,
	EventDraftSaved:         CategoryOperations,
	EventAttachmentUploaded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
