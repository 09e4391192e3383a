// Package autosave coalesces bursts of edits into single persist calls.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/intake/metrics"
)

// ErrStopped is returned by flushes requested after Stop.
var ErrStopped = errors.New("autosave scheduler stopped")

// FlushFunc persists the current draft. trigger is one of the
// metrics.Trigger* labels.
type FlushFunc func(ctx context.Context, trigger string) error

// Scheduler owns a single debounce timer. Schedule (re)starts it; on expiry
// the flush runs once. Every persist, timer-driven or explicit, runs under
// one in-flight guard, so at most one persist is outstanding at a time and a
// flush requested meanwhile waits its turn instead of overlapping.
type Scheduler struct {
	window  time.Duration
	timeout time.Duration
	flush   FlushFunc
	onError func(error)
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	fired   sync.WaitGroup

	inflight sync.Mutex
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithErrorHandler receives errors from timer-driven flushes, which have no
// caller to return to.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithFlushTimeout bounds timer-driven flushes.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a scheduler with the given debounce window.
func New(window time.Duration, flush FlushFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		window:  window,
		timeout: 30 * time.Second,
		flush:   flush,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records an edit: it cancels any pending timer and starts a new
// one for the full window.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		if s.timer.Stop() {
			s.fired.Done()
		}
		s.metrics.IncrementCoalesced()
	}
	s.gen++
	gen := s.gen
	s.fired.Add(1)
	s.timer = time.AfterFunc(s.window, func() { s.fire(gen) })
}

// Cancel drops a pending timer without flushing.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Pending reports whether a debounce timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// FlushNow cancels the pending timer, if any, and persists immediately.
func (s *Scheduler) FlushNow(ctx context.Context) error {
	return s.Run(ctx, func(ctx context.Context) error {
		return s.flush(ctx, metrics.TriggerFlush)
	})
}

// Run cancels the pending timer and executes fn under the in-flight guard.
// It is how callers issue persists other than the plain flush (finalize).
func (s *Scheduler) Run(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.cancelLocked()
	s.mu.Unlock()

	s.inflight.Lock()
	defer s.inflight.Unlock()
	return fn(ctx)
}

// Stop clears the pending timer and waits for a timer-driven flush that has
// already started. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.stopped = true
	s.mu.Unlock()
	s.fired.Wait()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		if s.timer.Stop() {
			s.fired.Done()
		}
		s.timer = nil
	}
	// invalidates a callback that already started but has not taken mu
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	defer s.fired.Done()

	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.inflight.Lock()
	err := s.flush(ctx, metrics.TriggerAutosave)
	s.inflight.Unlock()

	if err == nil {
		return
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "autosave failed", "error", err)
	}
	if s.onError != nil {
		s.onError(err)
	}
}
