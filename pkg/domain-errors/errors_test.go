package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("new error carries code", func(t *testing.T) {
		err := New(CodeIncomplete, "intake is not complete")
		assert.True(t, HasCode(err, CodeIncomplete))
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, "intake is not complete", MessageOf(err))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeUnavailable, "persist draft")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, CodeUnavailable, CodeOf(err))
	})

	t.Run("fmt wrapping preserves code", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeConflict, "draft already submitted"))
		assert.True(t, Is(err, CodeConflict))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}
