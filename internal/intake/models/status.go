package models

import dErrors "kycflow/pkg/domain-errors"

// Status is the submission state of a draft.
//
//	not_started -> in_progress -> submitted -> approved | rejected
//	rejected -> in_progress | submitted (reopened for editing)
//
// Approval and rejection are reviewer actions; the wizard only reads them.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusNotStarted: {StatusInProgress, StatusSubmitted},
	StatusInProgress: {StatusInProgress, StatusSubmitted},
	StatusSubmitted:  {StatusApproved, StatusRejected},
	StatusRejected:   {StatusInProgress, StatusSubmitted},
	StatusApproved:   nil,
}

// ParseStatus validates a status coming from the wire.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShortCircuits reports whether a loaded draft in this state skips the
// wizard entirely.
func (s Status) ShortCircuits() bool {
	return s == StatusSubmitted || s == StatusApproved
}

// Editable reports whether the owner may still change answers.
func (s Status) Editable() bool {
	return s == StatusNotStarted || s == StatusInProgress || s == StatusRejected
}

func (s Status) String() string {
	return string(s)
}
