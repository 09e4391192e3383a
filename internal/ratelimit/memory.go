package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemory is a single-process sliding window store.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{windows: map[string][]time.Time{}, now: time.Now}
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.windows[key], now.Add(-window))
	res := Result{Limit: limit}
	if len(hits) < limit {
		hits = append(hits, now)
		res.Allowed = true
	}
	res.Remaining = max(0, limit-len(hits))
	if len(hits) > 0 {
		res.ResetAt = hits[0].Add(window)
	} else {
		res.ResetAt = now.Add(window)
	}
	if len(hits) == 0 {
		delete(s.windows, key)
	} else {
		s.windows[key] = hits
	}
	return res, nil
}

// prune drops timestamps at or before cutoff. hits is in arrival order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
