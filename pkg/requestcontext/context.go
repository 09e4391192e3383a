// Package requestcontext carries request-scoped values (caller, request ID,
// request time) so services can read them without importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "kycflow/pkg/domain"
)

type key int

const (
	userIDKey key = iota
	requestIDKey
	requestTimeKey
)

// UserID returns the authenticated caller, or the nil UUID for anonymous
// requests.
func UserID(ctx context.Context) id.UserID {
	userID, _ := ctx.Value(userIDKey).(id.UserID)
	return userID
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the time the request arrived, falling back to the wall clock
// outside a request (CLI, timers).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time, typically in tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
