package worker

import (
	"context"
	"log/slog"

	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/circuit"
)

// Worker consumes audit events from a channel and persists them. A failing
// store trips the breaker so a storage outage sheds audit writes instead of
// stalling the queue behind timeouts.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	logger  *slog.Logger
	breaker *circuit.Breaker
	dropped int
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.breaker == nil {
		w.breaker = circuit.New("audit-store")
	}
	return w
}

// Run persists events until the inbox is closed and drained. Cancelling ctx
// stops the loop early and abandons queued events.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		}
	}
}

// Dropped reports how many events were discarded. Only safe to call after
// Run has returned.
func (w *Worker) Dropped() int {
	return w.dropped
}

func (w *Worker) handle(ctx context.Context, event audit.Event) {
	if !w.breaker.Allow() {
		w.dropped++
		return
	}
	if err := w.store.Append(ctx, event); err != nil {
		w.dropped++
		_, change := w.breaker.RecordFailure()
		w.logger.WarnContext(ctx, "audit append failed",
			"action", event.Action,
			"error", err,
		)
		if change.Opened {
			w.logger.ErrorContext(ctx, "audit store circuit opened", "breaker", w.breaker.Name())
		}
		return
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "audit store circuit closed", "breaker", w.breaker.Name())
	}
}
