package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusSubmitted, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusSubmitted, true},
		{StatusInProgress, StatusApproved, false},
		{StatusSubmitted, StatusInProgress, false},
		{StatusSubmitted, StatusApproved, true},
		{StatusSubmitted, StatusRejected, true},
		{StatusRejected, StatusInProgress, true},
		{StatusApproved, StatusInProgress, false},
		{StatusApproved, StatusRejected, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusSubmitted.ShortCircuits())
	assert.True(t, StatusApproved.ShortCircuits())
	assert.False(t, StatusRejected.ShortCircuits())
	assert.True(t, StatusRejected.Editable())
	assert.False(t, StatusSubmitted.Editable())

	_, err := ParseStatus("archived")
	assert.Error(t, err)
	st, err := ParseStatus("in_progress")
	assert.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}
