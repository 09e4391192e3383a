package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	user := uuid.New()

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
	}{
		{"valid token", "Bearer good", stubValidator{claims: &JWTClaims{UserID: user.String()}}, http.StatusOK},
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"subject is not a user id", "Bearer odd", stubValidator{claims: &JWTClaims{UserID: "nope"}}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got id.UserID
			h := RequireAuth(tt.validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = requestcontext.UserID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/kyc/drafts/donor", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, user.String(), got.String())
			} else {
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"`+errorDescription(tt.header)+`"}`, rr.Body.String())
			}
		})
	}
}

func errorDescription(header string) string {
	if header == "" || header == "Basic abc" {
		return "Missing or invalid Authorization header"
	}
	return "Invalid or expired token"
}
