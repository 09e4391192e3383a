// Package draftsync loads and persists a wizard's draft against the KYC
// service and keeps the saved snapshot in step with what was last sent.
package draftsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kycflow/internal/intake/attachments"
	"kycflow/internal/intake/fields"
	"kycflow/internal/intake/metrics"
	"kycflow/internal/intake/models"
	"kycflow/internal/intake/progress"
	"kycflow/internal/intake/sections"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/sentinel"
)

// Remote is the KYC service as seen by the wizard.
type Remote interface {
	// GetDraft returns sentinel.ErrNotFound when the user has no draft.
	GetDraft(ctx context.Context, role id.Role) (*models.Draft, error)
	PutDraft(ctx context.Context, req models.SaveDraftRequest) (*models.Draft, error)
}

// Outcome classifies a Load.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	// OutcomeDone means the draft is already submitted or approved and the
	// wizard should not be shown.
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

// Result describes a persist that reached the server. Failed lists
// attachment slots whose upload failed; their picks stay staged.
type Result struct {
	Draft  *models.Draft
	Sent   models.SaveDraftRequest
	Failed attachments.UploadErrors
}

// Client owns the load/persist protocol for one (user, role) wizard.
type Client struct {
	remote   Remote
	registry *sections.Registry
	store    *fields.Store
	snapshot *fields.Snapshot
	stager   *attachments.Stager
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	status models.Status
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(
	remote Remote,
	registry *sections.Registry,
	store *fields.Store,
	snapshot *fields.Snapshot,
	stager *attachments.Stager,
	opts ...Option,
) (*Client, error) {
	if remote == nil {
		return nil, errors.New("remote is required")
	}
	if registry == nil {
		return nil, errors.New("section registry is required")
	}
	if store == nil || snapshot == nil {
		return nil, errors.New("field store and snapshot are required")
	}
	if stager == nil {
		return nil, errors.New("attachment stager is required")
	}
	c := &Client{
		remote:   remote,
		registry: registry,
		store:    store,
		snapshot: snapshot,
		stager:   stager,
		status:   models.StatusNotStarted,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status returns the last known draft status.
func (c *Client) Status() models.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Load fetches the remote draft and merges it under any local edits. A
// failed fetch is not fatal: the wizard starts fresh and the error is
// returned with OutcomeFailed so the caller can show a notice.
func (c *Client) Load(ctx context.Context) (Outcome, error) {
	draft, err := c.remote.GetDraft(ctx, c.registry.Role())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.metrics.RecordLoad(string(OutcomeNotFound))
			return OutcomeNotFound, nil
		}
		c.logWarn(ctx, "could not load draft, starting fresh", "role", c.registry.Role(), "error", err)
		c.metrics.RecordLoad(string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("load draft: %w", err)
	}

	remote := draft.Sections
	if remote == nil {
		remote = models.Group{}
	}
	c.store.Merge(remote)
	c.snapshot.Replace(remote.Clone())

	c.mu.Lock()
	c.status = draft.Status
	c.mu.Unlock()

	if draft.Status.ShortCircuits() {
		c.metrics.RecordLoad(string(OutcomeDone))
		return OutcomeDone, nil
	}
	c.metrics.RecordLoad(string(OutcomeFound))
	return OutcomeFound, nil
}

// Persist uploads pending attachments, writes their URLs into the field
// store and sends the store to the server with status in_progress, or
// submitted when finalize is set. On success the snapshot becomes exactly
// the sections that were sent. On failure neither the store's edits nor the
// snapshot are rolled back.
func (c *Client) Persist(ctx context.Context, finalize bool) (*Result, error) {
	target := models.StatusInProgress
	if finalize {
		target = models.StatusSubmitted
	}
	current := c.Status()
	if !current.CanTransitionTo(target) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("cannot save a %s draft as %s", current, target))
	}

	resolved, err := c.stager.ResolvePending(ctx)
	var failed attachments.UploadErrors
	if err != nil && !errors.As(err, &failed) {
		return nil, fmt.Errorf("resolve attachments: %w", err)
	}
	c.applyResolved(resolved)

	root := c.store.Root()
	if finalize {
		if missing := c.registry.MissingRequiredAttachments(root); len(missing) > 0 {
			names := make([]string, 0, len(missing))
			for _, p := range missing {
				names = append(names, p.String())
			}
			c.metrics.RecordFinalizeBlocked("attachments")
			return nil, dErrors.New(dErrors.CodeIncomplete,
				"required attachments missing: "+strings.Join(names, ", "))
		}
	}

	req := models.SaveDraftRequest{
		Role:            c.registry.Role(),
		Status:          target,
		Sections:        root,
		ProgressPercent: progress.Compute(c.registry, root),
	}
	if len(resolved) > 0 {
		req.ResolvedAttachmentURLs = resolved
	}

	saved, err := c.remote.PutDraft(ctx, req)
	if err != nil {
		c.logWarn(ctx, "draft not saved", "role", c.registry.Role(), "finalize", finalize, "error", err)
		return nil, fmt.Errorf("save draft: %w", err)
	}

	c.snapshot.Replace(root)
	c.mu.Lock()
	c.status = target
	c.mu.Unlock()

	if len(failed) == 0 {
		failed = nil
	}
	return &Result{Draft: saved, Sent: req, Failed: failed}, nil
}

// applyResolved writes uploaded URLs into the store. Multi-file slots
// accumulate; single slots are replaced.
func (c *Client) applyResolved(resolved map[string]string) {
	for slot, url := range resolved {
		p := models.ParsePath(slot)
		spec, ok := c.registry.Field(p)
		if ok && spec.Kind == sections.FieldAttachments {
			cur, _ := c.store.Get(p)
			c.store.Set(p, cur.Append(url))
			continue
		}
		c.store.Set(p, models.Text(url))
	}
}

func (c *Client) logWarn(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, args...)
	}
}
