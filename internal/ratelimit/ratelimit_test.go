package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func guarded(l *Limiter) http.Handler {
	return l.Writes(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func send(h http.Handler, method string, userID id.UserID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/kyc/drafts/donor", nil)
	if !userID.IsNil() {
		req = req.WithContext(requestcontext.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWritesLimitsPerUser(t *testing.T) {
	h := guarded(New(NewInMemory(), 2, time.Minute, quiet()))
	ana, bo := id.UserID(uuid.New()), id.UserID(uuid.New())

	assert.Equal(t, http.StatusNoContent, send(h, http.MethodPut, ana).Code)
	rr := send(h, http.MethodPost, ana)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = send(h, http.MethodPut, ana)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","error_description":"Too many saves. Please try again shortly."}`, rr.Body.String())

	assert.Equal(t, http.StatusNoContent, send(h, http.MethodGet, ana).Code, "reads are not limited")
	assert.Equal(t, http.StatusNoContent, send(h, http.MethodPut, bo).Code, "users are limited separately")
}

func TestWritesPassThrough(t *testing.T) {
	t.Run("store failure", func(t *testing.T) {
		h := guarded(New(failingStore{}, 1, time.Minute, quiet()))
		assert.Equal(t, http.StatusNoContent, send(h, http.MethodPut, id.UserID(uuid.New())).Code)
	})

	t.Run("disabled", func(t *testing.T) {
		h := guarded(New(NewInMemory(), 0, time.Minute, quiet()))
		u := id.UserID(uuid.New())
		for range 5 {
			assert.Equal(t, http.StatusNoContent, send(h, http.MethodPut, u).Code)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		h := guarded(New(NewInMemory(), 1, time.Minute, quiet()))
		for range 3 {
			assert.Equal(t, http.StatusNoContent, send(h, http.MethodPut, id.UserID{}).Code)
		}
	})
}
