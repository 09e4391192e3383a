// Package admin guards reviewer endpoints with a shared token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "kycflow/pkg/platform/middleware/request"
)

// HeaderActor optionally names the reviewer acting through the admin token.
const HeaderActor = "X-Admin-Actor"

type contextKeyActor struct{}

// Actor returns the reviewer recorded by RequireAdminToken, or "admin".
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(contextKeyActor{}).(string); ok && a != "" {
		return a
	}
	return "admin"
}

func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			// an empty configured token never matches
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyActor{}, r.Header.Get(HeaderActor))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
