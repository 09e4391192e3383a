package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemory()
	s.now = func() time.Time { return now }

	for i := range 3 {
		res, err := s.Allow(ctx, "u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := s.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30, res.RetryAfter(now), "first hit leaves the window a minute after it landed")

	other, err := s.Allow(ctx, "u2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	now = now.Add(31 * time.Second)
	res, err = s.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "oldest hit has slid out")
}

func TestRetryAfterNeverNegative(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0, Result{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
	assert.Equal(t, 1, Result{ResetAt: now.Add(100 * time.Millisecond)}.RetryAfter(now))
}
