// Package wizard is the progressive intake engine: a step navigator over a
// role's section registry, backed by a field store that autosaves through the
// draft sync client and gates finalization on completion.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/intake/attachments"
	"kycflow/internal/intake/autosave"
	"kycflow/internal/intake/draftsync"
	"kycflow/internal/intake/fields"
	"kycflow/internal/intake/metrics"
	"kycflow/internal/intake/models"
	"kycflow/internal/intake/progress"
	"kycflow/internal/intake/sections"
	dErrors "kycflow/pkg/domain-errors"
)

// DefaultDebounce is the autosave quiet period after the last edit.
const DefaultDebounce = time.Second

// Wizard drives one (user, role) intake session. It is safe for concurrent
// use, though a single caller is expected.
type Wizard struct {
	registry  *sections.Registry
	store     *fields.Store
	snapshot  *fields.Snapshot
	stager    *attachments.Stager
	client    *draftsync.Client
	scheduler *autosave.Scheduler

	logger      *slog.Logger
	metrics     *metrics.Metrics
	debounce    time.Duration
	prefix      string
	concurrency int
	onDone      func(models.Status)
	onSkip      func()
	onSaveError func(error)

	mu      sync.Mutex
	step    int
	done    bool
	saveErr error
}

type Option func(*Wizard)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Wizard) {
		w.metrics = m
	}
}

// WithDebounce sets the autosave window. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Wizard) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithUploadPrefix sets the destination prefix for attachment uploads.
func WithUploadPrefix(prefix string) Option {
	return func(w *Wizard) {
		w.prefix = prefix
	}
}

// WithUploadConcurrency bounds parallel attachment uploads per save.
func WithUploadConcurrency(n int) Option {
	return func(w *Wizard) {
		w.concurrency = n
	}
}

// WithStartStep resumes navigation at step i, clamped to the valid range.
// Opening at a remembered step does not save.
func WithStartStep(i int) Option {
	return func(w *Wizard) {
		w.step = i
	}
}

// WithOnDone is called once the draft is submitted, or when Mount finds it
// already submitted or approved.
func WithOnDone(fn func(models.Status)) Option {
	return func(w *Wizard) {
		w.onDone = fn
	}
}

// WithOnSkip is called when the user leaves the wizard without finalizing.
func WithOnSkip(fn func()) Option {
	return func(w *Wizard) {
		w.onSkip = fn
	}
}

// WithOnSaveError receives autosave failures. They never block the user.
func WithOnSaveError(fn func(error)) Option {
	return func(w *Wizard) {
		w.onSaveError = fn
	}
}

// New assembles a wizard for registry's role.
func New(registry *sections.Registry, remote draftsync.Remote, uploader attachments.Uploader, opts ...Option) (*Wizard, error) {
	if registry == nil {
		return nil, errors.New("section registry is required")
	}
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	w := &Wizard{
		registry: registry,
		store:    fields.NewStore(),
		snapshot: fields.NewSnapshot(),
		debounce: DefaultDebounce,
		prefix:   registry.Role().String(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.step = max(0, min(w.step, registry.Len()-1))

	stagerOpts := []attachments.Option{
		attachments.WithLogger(w.logger),
		attachments.WithMetrics(w.metrics),
	}
	if w.concurrency > 0 {
		stagerOpts = append(stagerOpts, attachments.WithConcurrency(w.concurrency))
	}
	w.stager = attachments.New(uploader, w.prefix, stagerOpts...)

	client, err := draftsync.New(remote, registry, w.store, w.snapshot, w.stager,
		draftsync.WithLogger(w.logger),
		draftsync.WithMetrics(w.metrics),
	)
	if err != nil {
		return nil, err
	}
	w.client = client

	w.scheduler = autosave.New(w.debounce, w.flush,
		autosave.WithLogger(w.logger),
		autosave.WithMetrics(w.metrics),
		autosave.WithErrorHandler(w.autosaveFailed),
	)
	return w, nil
}

// Mount loads any existing draft. When the draft is already submitted or
// approved, OnDone fires and the wizard should not be shown. A failed load
// leaves the wizard usable with an empty store; the error is returned as a
// notice.
func (w *Wizard) Mount(ctx context.Context) (draftsync.Outcome, error) {
	outcome, err := w.client.Load(ctx)
	if outcome == draftsync.OutcomeDone {
		w.finish(w.client.Status())
	}
	return outcome, err
}

// SetField records an answer and restarts the autosave window. A value of
// the wrong kind for the field is refused before it reaches the store.
func (w *Wizard) SetField(path models.Path, v models.Value) error {
	if err := w.checkEditable(); err != nil {
		return err
	}
	spec, ok := w.registry.Field(path)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown field %q", path))
	}
	if !spec.Accepts(v) {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%q does not take a %s value", path, v.Kind()))
	}
	w.store.Set(path, v)
	w.scheduler.Schedule()
	return nil
}

// Field returns the live value at path.
func (w *Wizard) Field(path models.Path) (models.Value, bool) {
	return w.store.Get(path)
}

// Sections returns the live answers.
func (w *Wizard) Sections() models.Group {
	return w.store.Root()
}

// StagePick attaches a local binary to an attachment slot. It is uploaded by
// the next save.
func (w *Wizard) StagePick(slot models.Path, blob attachments.Blob) error {
	if err := w.checkEditable(); err != nil {
		return err
	}
	spec, ok := w.registry.Field(slot)
	if !ok || !spec.IsAttachment() {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%q is not an attachment slot", slot))
	}
	w.stager.StagePick(slot, blob)
	return nil
}

// Progress is the percentage of complete sections.
func (w *Wizard) Progress() int {
	return progress.Compute(w.registry, w.store.Root())
}

// Step is the current zero-based step index.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Steps is the number of sections in the wizard.
func (w *Wizard) Steps() int {
	return w.registry.Len()
}

// Section returns the section shown at the current step.
func (w *Wizard) Section() sections.Section {
	s, _ := w.registry.At(w.Step())
	return s
}

// Advance saves and moves one step forward. Navigation happens even when the
// save fails; the error is returned so the caller can show "not saved".
func (w *Wizard) Advance(ctx context.Context) (int, error) {
	return w.move(ctx, w.Step()+1)
}

// Retreat saves and moves one step back.
func (w *Wizard) Retreat(ctx context.Context) (int, error) {
	return w.move(ctx, w.Step()-1)
}

func (w *Wizard) move(ctx context.Context, target int) (int, error) {
	var err error
	if !w.isDone() {
		err = w.scheduler.FlushNow(ctx)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.step = max(0, min(target, w.registry.Len()-1))
	return w.step, err
}

// Finalize submits the draft. Below 100% it fails with CodeIncomplete without
// touching the network. Required attachments that never resolved block it
// the same way.
func (w *Wizard) Finalize(ctx context.Context) error {
	if err := w.checkEditable(); err != nil {
		return err
	}
	if pct := w.Progress(); pct < 100 {
		w.metrics.RecordFinalizeBlocked("progress")
		return dErrors.New(dErrors.CodeIncomplete, fmt.Sprintf("intake is %d%% complete", pct))
	}

	err := w.scheduler.Run(ctx, func(ctx context.Context) error {
		return w.persist(ctx, metrics.TriggerFinalize, true)
	})
	if err != nil && w.client.Status() != models.StatusSubmitted {
		return err
	}
	w.finish(models.StatusSubmitted)
	return nil
}

// Save persists now instead of waiting for the autosave window.
func (w *Wizard) Save(ctx context.Context) error {
	if err := w.checkEditable(); err != nil {
		return err
	}
	return w.scheduler.FlushNow(ctx)
}

// Skip leaves the wizard without finalizing. Unsaved edits are flushed first;
// if that fails OnSkip is not called and the error is returned.
func (w *Wizard) Skip(ctx context.Context) error {
	if !w.isDone() && w.Dirty() {
		if err := w.scheduler.FlushNow(ctx); err != nil {
			return err
		}
	}
	if w.onSkip != nil {
		w.onSkip()
	}
	return nil
}

// Close flushes unsaved edits and stops the autosave timer. The wizard must
// not be used afterwards.
func (w *Wizard) Close(ctx context.Context) error {
	var err error
	if !w.isDone() && w.Dirty() {
		err = w.scheduler.FlushNow(ctx)
	}
	w.scheduler.Stop()
	return err
}

// Status is the draft's last known status.
func (w *Wizard) Status() models.Status {
	return w.client.Status()
}

// IsConfirmed reports whether the field at path holds a value, live or saved.
func (w *Wizard) IsConfirmed(path models.Path) bool {
	return w.snapshot.Confirmed(w.store.Root(), path)
}

// Dirty reports whether there are edits or picks the server has not seen.
func (w *Wizard) Dirty() bool {
	return w.stager.HasPending() || !w.snapshot.Matches(w.store.Root())
}

// IsPending reports whether slot has a pick waiting for upload.
func (w *Wizard) IsPending(slot models.Path) bool {
	return w.stager.IsPending(slot)
}

// SaveError is the result of the most recent save, nil once one succeeds.
func (w *Wizard) SaveError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saveErr
}

func (w *Wizard) flush(ctx context.Context, trigger string) error {
	return w.persist(ctx, trigger, false)
}

// persist returns attachments.UploadErrors when the draft saved but some
// uploads did not.
func (w *Wizard) persist(ctx context.Context, trigger string, finalize bool) error {
	start := time.Now()
	res, err := w.client.Persist(ctx, finalize)
	w.metrics.ObservePersist(trigger, start, err)
	if err == nil && len(res.Failed) > 0 {
		err = res.Failed
	}

	w.mu.Lock()
	w.saveErr = err
	w.mu.Unlock()

	if err == nil && w.logger != nil {
		w.logger.DebugContext(ctx, "draft saved",
			"role", w.registry.Role(),
			"trigger", trigger,
			"progress", res.Sent.ProgressPercent,
		)
	}
	return err
}

func (w *Wizard) autosaveFailed(err error) {
	if w.onSaveError != nil {
		w.onSaveError(err)
	}
}

func (w *Wizard) checkEditable() error {
	if w.isDone() || !w.client.Status().Editable() {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("draft is %s and can no longer be edited", w.client.Status()))
	}
	return nil
}

func (w *Wizard) isDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Wizard) finish(status models.Status) {
	w.mu.Lock()
	already := w.done
	w.done = true
	w.mu.Unlock()
	if already {
		return
	}
	w.scheduler.Cancel()
	if w.onDone != nil {
		w.onDone(status)
	}
}
