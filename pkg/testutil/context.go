package testutil

import (
	"net/http"

	id "taxfile/pkg/domain"
	"taxfile/pkg/requestcontext"
)

// WithUser adds an authenticated principal to the request context,
// simulating what the auth middleware does for authenticated requests.
func WithUser(req *http.Request, userID id.UserID) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

// WithAdmin marks the request context as carrying admin privileges in
// addition to the principal.
func WithAdmin(req *http.Request, userID id.UserID) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithAdmin(ctx, true)
	return req.WithContext(ctx)
}
