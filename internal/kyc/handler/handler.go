package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/platform/middleware/admin"
	"kycflow/pkg/requestcontext"
)

const maxDraftBody = 1 << 20

// Service defines the draft operations the HTTP layer needs.
type Service interface {
	GetDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error)
	SaveDraft(ctx context.Context, userID id.UserID, req models.SaveDraftRequest) (*models.Draft, error)
	Review(ctx context.Context, userID id.UserID, role id.Role, actor string, decision models.ReviewDecision) (*models.Draft, error)
	ListPending(ctx context.Context, limit int) ([]*models.Draft, error)
	Upload(ctx context.Context, userID id.UserID, dest, contentType string, body io.Reader) (*models.UploadResult, error)
}

// Handler wires draft endpoints to the draft service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts applicant endpoints. The router must already authenticate
// callers.
func (h *Handler) Register(r chi.Router) {
	r.Get("/kyc/drafts/{role}", h.HandleGetDraft)
	r.Put("/kyc/drafts/{role}", h.HandleSaveDraft)
	r.Post("/kyc/uploads", h.HandleUpload)
}

// RegisterAdmin mounts reviewer endpoints. The router must already check the
// admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/kyc/drafts", h.HandleListPending)
	r.Post("/admin/kyc/drafts/{userID}/{role}/review", h.HandleReview)
}

// HandleGetDraft handles GET /kyc/drafts/{role}.
func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	draft, err := h.service.GetDraft(ctx, requestcontext.UserID(ctx), role)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			httputil.LogError(h.logger, r, "get draft failed", err, "request_id", requestcontext.RequestID(ctx))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

// HandleSaveDraft handles PUT /kyc/drafts/{role}. A role in the body must
// match the path.
func (h *Handler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	var req models.SaveDraftRequest
	if err := httputil.DecodeJSON(http.MaxBytesReader(w, r.Body, maxDraftBody), &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Role == "" {
		req.Role = role
	}
	if req.Role != role {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "role in body does not match path"))
		return
	}

	draft, err := h.service.SaveDraft(ctx, requestcontext.UserID(ctx), req)
	if err != nil {
		httputil.LogError(h.logger, r, "save draft failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"role", role,
			"status", req.Status,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

// HandleUpload handles POST /kyc/uploads?dest=<path>. The body is the raw
// file and Content-Type names its media type.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dest := r.URL.Query().Get("dest")
	if dest == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "dest is required"))
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res, err := h.service.Upload(ctx, requestcontext.UserID(ctx), dest, contentType, r.Body)
	if err != nil {
		httputil.LogError(h.logger, r, "upload failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"dest", dest,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleListPending handles GET /admin/kyc/drafts?limit=N.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	drafts, err := h.service.ListPending(ctx, limit)
	if err != nil {
		httputil.LogError(h.logger, r, "list pending drafts failed", err)
		httputil.WriteError(w, err)
		return
	}
	if drafts == nil {
		drafts = []*models.Draft{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

// HandleReview handles POST /admin/kyc/drafts/{userID}/{role}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	var decision models.ReviewDecision
	if err := httputil.DecodeJSON(http.MaxBytesReader(w, r.Body, maxDraftBody), &decision); err != nil {
		httputil.WriteError(w, err)
		return
	}

	draft, err := h.service.Review(ctx, userID, role, admin.Actor(ctx), decision)
	if err != nil {
		httputil.LogError(h.logger, r, "review failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"role", role,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

func (h *Handler) roleParam(w http.ResponseWriter, r *http.Request) (id.Role, bool) {
	role, err := id.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown role"))
		return "", false
	}
	return role, true
}
