package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/intake/models"
	"kycflow/internal/kyc/blob"
	"kycflow/internal/kyc/service/mocks"
	"kycflow/internal/kyc/store"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/requestcontext"
)

// =============================================================================
// Draft Service Test Suite
// =============================================================================
// Runs against the in-memory draft store and a MemMapFs blob store so the
// state machine is exercised end to end; only the audit sink is mocked, since
// which events fire (and what a failing sink does) is part of the contract.

const baseURL = "https://kyc.test"

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	auditor *mocks.MockAuditPublisher
	drafts  *store.InMemory
	fs      afero.Fs
	svc     *Service
	user    id.UserID
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.drafts = store.NewInMemory()
	s.fs = afero.NewMemMapFs()
	svc, err := New(s.drafts, blob.New(s.fs, "/uploads"),
		WithAuditPublisher(s.auditor),
		WithPublicBaseURL(baseURL+"/"),
		WithUploadLimits(16, []string{"image/jpeg", "application/pdf"}),
	)
	s.Require().NoError(err)
	s.svc = svc
	s.user = id.UserID(uuid.New())
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.now)
}

func (s *ServiceSuite) expectAudit(event audit.AuditEvent) {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.Equal(string(event), e.Action)
			s.Equal(s.user, e.UserID)
			s.Equal("req-1", e.RequestID)
			return nil
		})
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "want %s, got %v", code, err)
}

func fieldPath(p string) models.Path { return models.ParsePath(p) }

// completeDonor answers every donor section, including the required ID image.
func completeDonor(idFront string) models.Group {
	return models.Group{}.
		With(fieldPath("personal.first_name"), models.Text("Ana")).
		With(fieldPath("physical.height_cm"), models.Text("170")).
		With(fieldPath("medical.genetic_conditions"), models.Bool(false)).
		With(fieldPath("family_history.adopted"), models.Bool(false)).
		With(fieldPath("education.highest_level"), models.Text("MSc")).
		With(fieldPath("identification.document_type"), models.Text("passport")).
		With(fieldPath("identification.id_front"), models.Text(idFront))
}

func (s *ServiceSuite) save(status models.Status, sections models.Group) (*models.Draft, error) {
	return s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{
		Role:     id.RoleDonor,
		Status:   status,
		Sections: sections,
	})
}

func (s *ServiceSuite) submitted() {
	s.expectAudit(audit.EventDraftSubmitted)
	_, err := s.save(models.StatusSubmitted, completeDonor("https://elsewhere/id.jpg"))
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil, blob.New(afero.NewMemMapFs(), "/"))
	s.Error(err)
	_, err = New(store.NewInMemory(), nil)
	s.Error(err)
}

func (s *ServiceSuite) TestGetDraft() {
	s.Run("missing draft is not found", func() {
		_, err := s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("anonymous caller is rejected", func() {
		_, err := s.svc.GetDraft(s.ctx, id.UserID{}, id.RoleDonor)
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("unknown role is rejected", func() {
		_, err := s.svc.GetDraft(s.ctx, s.user, id.Role("pilot"))
		s.requireCode(err, dErrors.CodeInvalidInput)
	})
}

// TestSaveRecomputesProgress verifies the stored progress comes from the
// registry, not from the client's claim.
func (s *ServiceSuite) TestSaveRecomputesProgress() {
	s.expectAudit(audit.EventDraftSaved)
	saved, err := s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{
		Role:            id.RoleDonor,
		Status:          models.StatusInProgress,
		Sections:        models.Group{}.With(fieldPath("personal.first_name"), models.Text("Ana")),
		ProgressPercent: 99,
	})
	s.Require().NoError(err)
	s.Equal(17, saved.ProgressPercent)
	s.Equal(models.StatusInProgress, saved.Status)
	s.True(s.now.Equal(saved.UpdatedAt))

	got, err := s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
	s.Require().NoError(err)
	s.Equal(17, got.ProgressPercent)
}

func (s *ServiceSuite) TestSaveRejectsBadInput() {
	s.Run("unknown field", func() {
		_, err := s.save(models.StatusInProgress, models.Group{}.With(fieldPath("personal.shoe_size"), models.Text("42")))
		s.requireCode(err, dErrors.CodeValidation)
		s.Contains(dErrors.MessageOf(err), "personal.shoe_size")
	})

	s.Run("wrong shape", func() {
		_, err := s.save(models.StatusInProgress, models.Group{}.With(fieldPath("medical.genetic_conditions"), models.Text("no")))
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("reviewer status", func() {
		_, err := s.save(models.StatusApproved, models.Group{})
		s.requireCode(err, dErrors.CodeInvalidInput)
	})

	_, err := s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestSubmitGate() {
	s.Run("below 100 percent", func() {
		_, err := s.save(models.StatusSubmitted, models.Group{}.With(fieldPath("personal.first_name"), models.Text("Ana")))
		s.requireCode(err, dErrors.CodeIncomplete)
	})

	s.Run("required attachment missing", func() {
		root := completeDonor("")
		_, err := s.save(models.StatusSubmitted, root)
		s.requireCode(err, dErrors.CodeIncomplete)
		s.Contains(dErrors.MessageOf(err), "identification.id_front")
	})

	_, err := s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestSubmittedDraftIsLocked() {
	s.submitted()

	_, err := s.save(models.StatusInProgress, completeDonor("https://elsewhere/id.jpg"))
	s.requireCode(err, dErrors.CodeConflict)

	got, err := s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, got.Status)
	s.Equal(100, got.ProgressPercent)
}

func (s *ServiceSuite) TestReview() {
	s.Run("missing draft", func() {
		_, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops", models.ReviewDecision{Status: models.StatusApproved})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.expectAudit(audit.EventDraftSaved)
	_, err := s.save(models.StatusInProgress, models.Group{})
	s.Require().NoError(err)

	s.Run("draft not awaiting review", func() {
		_, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops", models.ReviewDecision{Status: models.StatusApproved})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("rejection without reason", func() {
		_, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops", models.ReviewDecision{Status: models.StatusRejected})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("non-decision status", func() {
		_, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops", models.ReviewDecision{Status: models.StatusInProgress})
		s.requireCode(err, dErrors.CodeInvalidInput)
	})
}

// TestRejectedDraftReopens verifies a rejected applicant can edit and
// resubmit.
func (s *ServiceSuite) TestRejectedDraftReopens() {
	s.submitted()

	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.Equal(string(audit.EventDraftReviewed), e.Action)
			s.Equal("rejected", e.Decision)
			s.Equal("blurry ID", e.Reason)
			s.Equal("ops@example.com", e.ActorID)
			return nil
		})
	reviewed, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops@example.com",
		models.ReviewDecision{Status: models.StatusRejected, Reason: "blurry ID"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, reviewed.Status)

	s.expectAudit(audit.EventDraftSaved)
	reopened, err := s.save(models.StatusInProgress, completeDonor("https://elsewhere/id2.jpg"))
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, reopened.Status)
}

func (s *ServiceSuite) TestApprovedDraftIsFinal() {
	s.submitted()
	s.expectAudit(audit.EventDraftReviewed)
	_, err := s.svc.Review(s.ctx, s.user, id.RoleDonor, "ops", models.ReviewDecision{Status: models.StatusApproved})
	s.Require().NoError(err)

	_, err = s.save(models.StatusSubmitted, completeDonor("https://elsewhere/id.jpg"))
	s.requireCode(err, dErrors.CodeConflict)
}

// TestAuditFailureAbortsSave verifies a draft change is not kept when its
// audit record cannot be written.
func (s *ServiceSuite) TestAuditFailureAbortsSave() {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("sink down"))

	_, err := s.save(models.StatusInProgress, models.Group{})
	s.requireCode(err, dErrors.CodeInternal)

	_, err = s.svc.GetDraft(s.ctx, s.user, id.RoleDonor)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestListPending() {
	s.submitted()
	s.expectAudit(audit.EventDraftSaved)
	_, err := s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{Role: id.RoleSurrogate, Status: models.StatusInProgress})
	s.Require().NoError(err)

	pending, err := s.svc.ListPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(id.RoleDonor, pending[0].Role)
}

func (s *ServiceSuite) TestUpload() {
	s.expectAudit(audit.EventAttachmentUploaded)
	res, err := s.svc.Upload(s.ctx, s.user, "donor/identification.id_front/a.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	s.Require().NoError(err)
	s.Equal(baseURL+"/uploads/"+s.user.String()+"/donor/identification.id_front/a.jpg", res.URL)
	s.True(strings.HasPrefix(res.URL, s.svc.UploadPrefix(s.user)))

	stored, err := afero.ReadFile(s.fs, "/uploads/"+s.user.String()+"/donor/identification.id_front/a.jpg")
	s.Require().NoError(err)
	s.Equal("jpeg-bytes", string(stored))
}

func (s *ServiceSuite) TestUploadRejections() {
	s.Run("too large", func() {
		_, err := s.svc.Upload(s.ctx, s.user, "donor/a.jpg", "image/jpeg", strings.NewReader(strings.Repeat("x", 17)))
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("content type", func() {
		_, err := s.svc.Upload(s.ctx, s.user, "donor/a.exe", "application/x-msdownload", strings.NewReader("x"))
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("content type parameters are ignored", func() {
		s.expectAudit(audit.EventAttachmentUploaded)
		_, err := s.svc.Upload(s.ctx, s.user, "donor/a.pdf", "Application/PDF; charset=binary", strings.NewReader("x"))
		s.NoError(err)
	})

	s.Run("path traversal", func() {
		_, err := s.svc.Upload(s.ctx, s.user, "../other/a.jpg", "image/jpeg", strings.NewReader("x"))
		s.requireCode(err, dErrors.CodeInvalidInput)
	})
}

func (s *ServiceSuite) TestUploadStorageFailure() {
	blobs := mocks.NewMockBlobStore(s.ctrl)
	svc, err := New(s.drafts, blobs)
	s.Require().NoError(err)
	blobs.EXPECT().Put(gomock.Any(), s.user.String()+"/donor/a.jpg", gomock.Any(), int64(DefaultMaxUploadBytes)).
		DoAndReturn(func(_ context.Context, _ string, body io.Reader, _ int64) (int64, error) {
			return 0, errors.New("disk full")
		})

	_, err = svc.Upload(s.ctx, s.user, "donor/a.jpg", "image/jpeg", strings.NewReader("x"))
	s.requireCode(err, dErrors.CodeInternal)
}

// TestResolvedAttachmentsMustBelongToCaller verifies a client cannot claim
// another user's upload as freshly resolved.
func (s *ServiceSuite) TestResolvedAttachmentsMustBelongToCaller() {
	other := baseURL + "/uploads/" + uuid.NewString() + "/donor/id.jpg"
	_, err := s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{
		Role:                   id.RoleDonor,
		Status:                 models.StatusInProgress,
		Sections:               models.Group{}.With(fieldPath("identification.id_front"), models.Text(other)),
		ResolvedAttachmentURLs: map[string]string{"identification.id_front": other},
	})
	s.requireCode(err, dErrors.CodeValidation)

	own := s.svc.UploadPrefix(s.user) + "donor/id.jpg"
	s.Run("url missing from sections", func() {
		_, err := s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{
			Role:                   id.RoleDonor,
			Status:                 models.StatusInProgress,
			Sections:               models.Group{},
			ResolvedAttachmentURLs: map[string]string{"identification.id_front": own},
		})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("own upload in a multi slot", func() {
		s.expectAudit(audit.EventDraftSaved)
		photo := s.svc.UploadPrefix(s.user) + "donor/photo.jpg"
		_, err := s.svc.SaveDraft(s.ctx, s.user, models.SaveDraftRequest{
			Role:                   id.RoleDonor,
			Status:                 models.StatusInProgress,
			Sections:               models.Group{}.With(fieldPath("education.photos"), models.List("https://old", photo)),
			ResolvedAttachmentURLs: map[string]string{"education.photos": photo},
		})
		s.NoError(err)
	})
}
