// Package service is the system of record for intake drafts. It recomputes
// progress on every write, enforces the submission state machine and stores
// attachment uploads.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks DraftStore,BlobStore,AuditPublisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"

	"kycflow/internal/intake/models"
	"kycflow/internal/intake/progress"
	"kycflow/internal/intake/sections"
	"kycflow/internal/kyc/blob"
	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/store"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// DefaultMaxUploadBytes caps uploads when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

type DraftStore interface {
	FindDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error)
	Execute(ctx context.Context, userID id.UserID, role id.Role, fn store.MutateFunc) (*models.Draft, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Draft, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, maxBytes int64) (int64, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates draft persistence, review and uploads.
type Service struct {
	drafts       DraftStore
	blobs        BlobStore
	logger       *slog.Logger
	auditor      AuditPublisher
	metrics      *metrics.Metrics
	baseURL      string
	maxBytes     int64
	allowedTypes []string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublicBaseURL sets the origin used to build upload URLs, e.g.
// "https://kyc.example.com". Uploads are served under <base>/uploads/.
func WithPublicBaseURL(base string) Option {
	return func(s *Service) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUploadLimits bounds upload size and, when types is non-empty,
// restricts accepted content types.
func WithUploadLimits(maxBytes int64, types []string) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
		s.allowedTypes = types
	}
}

func New(drafts DraftStore, blobs BlobStore, opts ...Option) (*Service, error) {
	if drafts == nil {
		return nil, errors.New("draft store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	s := &Service{drafts: drafts, blobs: blobs, maxBytes: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// GetDraft returns the caller's draft for role.
func (s *Service) GetDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error) {
	if err := requireOwner(userID, role); err != nil {
		return nil, err
	}
	d, err := s.drafts.FindDraft(ctx, userID, role)
	if err != nil {
		return nil, wrapDraftErr(err, "failed to load draft")
	}
	return d, nil
}

// SaveDraft replaces the caller's answers for req.Role and moves the draft to
// req.Status. Progress is recomputed from the role's registry; the client's
// figure is ignored.
func (s *Service) SaveDraft(ctx context.Context, userID id.UserID, req models.SaveDraftRequest) (*models.Draft, error) {
	if err := requireOwner(userID, req.Role); err != nil {
		return nil, err
	}
	if req.Status != models.StatusInProgress && req.Status != models.StatusSubmitted {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "status must be in_progress or submitted")
	}
	reg, err := sections.ForRole(req.Role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unsupported role")
	}
	answers := req.Sections
	if answers == nil {
		answers = models.Group{}
	}
	if err := validateSections(reg, answers); err != nil {
		return nil, err
	}
	if err := s.validateResolved(userID, reg, answers, req.ResolvedAttachmentURLs); err != nil {
		return nil, err
	}

	pct := progress.Compute(reg, answers)
	if req.Status == models.StatusSubmitted {
		if pct < 100 {
			return nil, dErrors.New(dErrors.CodeIncomplete,
				fmt.Sprintf("draft is %d%% complete; every section needs an answer before submission", pct))
		}
		if missing := reg.MissingRequiredAttachments(answers); len(missing) > 0 {
			return nil, dErrors.New(dErrors.CodeIncomplete, "required attachments missing: "+joinPaths(missing))
		}
	}

	saved, err := s.drafts.Execute(ctx, userID, req.Role, func(txCtx context.Context, d *models.Draft) error {
		if !d.Status.CanTransitionTo(req.Status) {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("cannot save a %s draft as %s", d.Status, req.Status))
		}
		d.Sections = answers.Clone()
		d.Status = req.Status
		d.ProgressPercent = pct
		d.UpdatedAt = requestcontext.Now(txCtx)

		event := audit.EventDraftSaved
		if req.Status == models.StatusSubmitted {
			event = audit.EventDraftSubmitted
		}
		return s.emit(txCtx, audit.Event{
			UserID:   userID,
			Subject:  string(req.Role),
			Action:   string(event),
			Decision: string(req.Status),
		})
	})
	if err != nil {
		return nil, wrapDraftErr(err, "failed to save draft")
	}

	s.metrics.RecordSave(string(req.Role), string(saved.Status))
	s.logger.InfoContext(ctx, "draft saved",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"role", req.Role,
		"status", saved.Status,
		"progress_percent", saved.ProgressPercent,
	)
	return saved, nil
}

// Review records a reviewer's decision on a submitted draft. Rejections
// need a reason, which is kept on the audit event.
func (s *Service) Review(ctx context.Context, userID id.UserID, role id.Role, actor string, decision models.ReviewDecision) (*models.Draft, error) {
	if err := requireOwner(userID, role); err != nil {
		return nil, err
	}
	switch decision.Status {
	case models.StatusApproved:
	case models.StatusRejected:
		if strings.TrimSpace(decision.Reason) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "a rejection needs a reason")
		}
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be approved or rejected")
	}
	if _, err := s.drafts.FindDraft(ctx, userID, role); err != nil {
		return nil, wrapDraftErr(err, "failed to load draft")
	}

	reviewed, err := s.drafts.Execute(ctx, userID, role, func(txCtx context.Context, d *models.Draft) error {
		if d.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("draft is %s, not awaiting review", d.Status))
		}
		d.Status = decision.Status
		d.UpdatedAt = requestcontext.Now(txCtx)
		return s.emit(txCtx, audit.Event{
			UserID:   userID,
			Subject:  string(role),
			Action:   string(audit.EventDraftReviewed),
			Decision: string(decision.Status),
			Reason:   decision.Reason,
			ActorID:  actor,
		})
	})
	if err != nil {
		return nil, wrapDraftErr(err, "failed to review draft")
	}

	s.metrics.RecordReview(string(decision.Status))
	s.logger.InfoContext(ctx, "draft reviewed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"role", role,
		"status", decision.Status,
		"actor", actor,
	)
	return reviewed, nil
}

// ListPending returns submitted drafts awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*models.Draft, error) {
	drafts, err := s.drafts.ListByStatus(ctx, models.StatusSubmitted, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list drafts")
	}
	return drafts, nil
}

// Upload stores body under the caller's namespace at dest and returns the
// public URL it will be served from.
func (s *Service) Upload(ctx context.Context, userID id.UserID, dest, contentType string, body io.Reader) (*models.UploadResult, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	key, err := blob.CleanKey(dest)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid upload path")
	}
	if !s.typeAllowed(contentType) {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported content type "+contentType)
	}

	key = path.Join(userID.String(), key)
	n, err := s.blobs.Put(ctx, key, body, s.maxBytes)
	s.metrics.RecordUpload(n, err)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrTooLarge):
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
		case errors.Is(err, blob.ErrInvalidKey):
			return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid upload path")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}

	if err := s.emit(ctx, audit.Event{
		UserID:  userID,
		Subject: key,
		Action:  string(audit.EventAttachmentUploaded),
	}); err != nil {
		s.logger.WarnContext(ctx, "upload audit failed", "key", key, "error", err)
	}
	return &models.UploadResult{URL: s.publicURL(key)}, nil
}

// UploadPrefix is the URL prefix every upload owned by userID starts with.
func (s *Service) UploadPrefix(userID id.UserID) string {
	return s.baseURL + "/uploads/" + userID.String() + "/"
}

func (s *Service) publicURL(key string) string {
	u := url.URL{Path: "/uploads/" + key}
	return s.baseURL + u.EscapedPath()
}

func (s *Service) typeAllowed(contentType string) bool {
	if len(s.allowedTypes) == 0 {
		return true
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	return slices.Contains(s.allowedTypes, strings.ToLower(strings.TrimSpace(mediaType)))
}

// validateResolved checks that every URL the client reports as freshly
// uploaded belongs to the caller and is recorded in its slot.
func (s *Service) validateResolved(userID id.UserID, reg *sections.Registry, answers models.Group, resolved map[string]string) error {
	prefix := s.UploadPrefix(userID)
	for slot, link := range resolved {
		p := models.ParsePath(slot)
		spec, ok := reg.Field(p)
		if !ok || !spec.IsAttachment() {
			return dErrors.New(dErrors.CodeValidation, "unknown attachment slot "+slot)
		}
		if !strings.HasPrefix(link, prefix) {
			return dErrors.New(dErrors.CodeValidation, "attachment "+slot+" was not uploaded by this user")
		}
		v, _ := answers.Value(p)
		if v.Text() != link && !slices.Contains(v.List(), link) {
			return dErrors.New(dErrors.CodeValidation, "attachment "+slot+" is missing from sections")
		}
	}
	return nil
}

// validateSections rejects answers for fields the role does not declare or
// whose shape does not match the field.
func validateSections(reg *sections.Registry, answers models.Group) error {
	var bad []string
	answers.Leaves(func(p models.Path, v models.Value) {
		spec, ok := reg.Field(p)
		if !ok || !spec.Accepts(v) {
			bad = append(bad, p.String())
		}
	})
	if len(bad) > 0 {
		slices.Sort(bad)
		return dErrors.New(dErrors.CodeValidation, "invalid fields: "+strings.Join(bad, ", "))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"user_id", event.UserID,
		"subject", event.Subject,
		"decision", event.Decision,
		"request_id", event.RequestID,
	)
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func requireOwner(userID id.UserID, role id.Role) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !role.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return nil
}

// wrapDraftErr keeps coded errors raised inside store callbacks and
// translates store sentinels.
func wrapDraftErr(err error, msg string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "draft not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func joinPaths(paths []models.Path) string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}
