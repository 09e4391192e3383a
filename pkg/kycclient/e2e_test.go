package kycclient_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/intake/attachments"
	"kycflow/internal/intake/draftsync"
	"kycflow/internal/intake/models"
	"kycflow/internal/intake/sections"
	"kycflow/internal/intake/wizard"
	jwttoken "kycflow/internal/jwt_token"
	"kycflow/internal/kyc/blob"
	"kycflow/internal/kyc/handler"
	"kycflow/internal/kyc/service"
	"kycflow/internal/kyc/store"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit/publisher"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	"kycflow/pkg/kycclient"
	auth "kycflow/pkg/platform/middleware/auth"
	"kycflow/pkg/testutil"
)

type stack struct {
	srv    *httptest.Server
	jwt    *jwttoken.JWTService
	drafts *store.InMemory
	audit  *auditmemory.InMemoryStore
}

// newStack serves the draft API the same way cmd/server does, minus
// persistence backends.
func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := &stack{
		jwt:    jwttoken.NewJWTService("test-signing-key", "kycflow", "kycflow-wizard"),
		drafts: store.NewInMemory(),
		audit:  auditmemory.NewInMemoryStore(),
	}
	blobs := blob.New(afero.NewMemMapFs(), "/data")

	r := chi.NewRouter()
	st.srv = httptest.NewServer(r)
	t.Cleanup(st.srv.Close)

	svc, err := service.New(st.drafts, blobs,
		service.WithLogger(logger),
		service.WithAuditPublisher(publisher.NewPublisher(st.audit)),
		service.WithPublicBaseURL(st.srv.URL),
		service.WithUploadLimits(1<<20, []string{"image/jpeg", "image/png"}),
	)
	require.NoError(t, err)

	h := handler.New(svc, logger)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(st.jwt), logger))
		h.Register(r)
	})
	r.Mount("/uploads", http.StripPrefix("/uploads", blobs.Handler()))
	return st
}

func (st *stack) client(t *testing.T, userID id.UserID) *kycclient.Client {
	t.Helper()
	token, err := st.jwt.GenerateAccessToken(userID, id.RoleDonor, time.Hour)
	require.NoError(t, err)
	c, err := kycclient.New(st.srv.URL, kycclient.WithToken(token))
	require.NoError(t, err)
	return c
}

func newWizard(t *testing.T, c *kycclient.Client, opts ...wizard.Option) *wizard.Wizard {
	t.Helper()
	reg, err := sections.ForRole(id.RoleDonor)
	require.NoError(t, err)
	w, err := wizard.New(reg, c, c, append([]wizard.Option{wizard.WithDebounce(time.Hour)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func set(t *testing.T, w *wizard.Wizard, p string, v models.Value) {
	t.Helper()
	require.NoError(t, w.SetField(models.ParsePath(p), v))
}

func TestWizardOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an HTTP server")
	}
	ctx := context.Background()
	st := newStack(t)
	userID := id.UserID(uuid.New())
	c := st.client(t, userID)

	testutil.Given(t, "a new donor with no draft", func(t *testing.T) {
		w := newWizard(t, c)
		outcome, err := w.Mount(ctx)
		require.NoError(t, err)
		assert.Equal(t, draftsync.OutcomeNotFound, outcome)
		assert.Equal(t, 0, w.Progress())

		testutil.When(t, "the first section is answered and the user advances", func(t *testing.T) {
			set(t, w, "personal.first_name", models.Text("Ana"))
			step, err := w.Advance(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, step)

			testutil.Then(t, "the server holds the answer with recomputed progress", func(t *testing.T) {
				d, err := st.drafts.FindDraft(ctx, userID, id.RoleDonor)
				require.NoError(t, err)
				assert.Equal(t, models.StatusInProgress, d.Status)
				assert.Equal(t, 17, d.ProgressPercent)
			})
		})

		testutil.When(t, "finalizing early", func(t *testing.T) {
			err := w.Finalize(ctx)
			testutil.Then(t, "it is refused as incomplete", func(t *testing.T) {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeIncomplete))
			})
		})

		testutil.When(t, "every section is answered and the ID is picked", func(t *testing.T) {
			set(t, w, "physical.height_cm", models.Text("170"))
			set(t, w, "medical.genetic_conditions", models.Bool(false))
			set(t, w, "family_history.adopted", models.Bool(false))
			set(t, w, "education.highest_level", models.Text("MSc"))
			set(t, w, "identification.document_type", models.Text("passport"))
			require.NoError(t, w.StagePick(models.ParsePath("identification.id_front"), attachments.BytesBlob{
				Filename: "front.jpg",
				Type:     "image/jpeg",
				Data:     []byte("jpeg-bytes"),
			}))
			require.NoError(t, w.Finalize(ctx))

			testutil.Then(t, "the draft is submitted with the uploaded URL", func(t *testing.T) {
				assert.Equal(t, models.StatusSubmitted, w.Status())
				d, err := st.drafts.FindDraft(ctx, userID, id.RoleDonor)
				require.NoError(t, err)
				assert.Equal(t, models.StatusSubmitted, d.Status)
				assert.Equal(t, 100, d.ProgressPercent)

				v, ok := d.Sections.Value(models.ParsePath("identification.id_front"))
				require.True(t, ok)
				assert.True(t, strings.HasPrefix(v.Text(), st.srv.URL+"/uploads/"+userID.String()+"/donor/identification.id_front/"))

				resp, err := http.Get(v.Text())
				require.NoError(t, err)
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, "jpeg-bytes", string(body))
			})

			testutil.Then(t, "submission and upload are audited", func(t *testing.T) {
				events, err := st.audit.ListByUser(ctx, userID)
				require.NoError(t, err)
				var actions []string
				for _, e := range events {
					actions = append(actions, e.Action)
				}
				assert.Contains(t, actions, "kyc_attachment_uploaded")
				assert.Contains(t, actions, "kyc_draft_submitted")
			})
		})
	})

	testutil.Given(t, "the donor returns after submitting", func(t *testing.T) {
		var done []models.Status
		w := newWizard(t, c, wizard.WithOnDone(func(s models.Status) { done = append(done, s) }))
		outcome, err := w.Mount(ctx)

		testutil.Then(t, "the wizard reports done without showing steps", func(t *testing.T) {
			require.NoError(t, err)
			assert.Equal(t, draftsync.OutcomeDone, outcome)
			assert.Equal(t, []models.Status{models.StatusSubmitted}, done)
			assert.Error(t, w.SetField(models.ParsePath("personal.first_name"), models.Text("Bo")))
		})
	})
}

func TestAnonymousCallerIsRejected(t *testing.T) {
	st := newStack(t)
	c, err := kycclient.New(st.srv.URL)
	require.NoError(t, err)

	_, err = c.GetDraft(context.Background(), id.RoleDonor)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
