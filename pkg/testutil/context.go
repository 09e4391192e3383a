package testutil

import (
	"net/http"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

// AsUser marks req as authenticated for userID, as RequireAuth would.
func AsUser(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}
