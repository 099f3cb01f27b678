package testutil

import (
	"net/http"

	id "docgate/pkg/domain"
	"docgate/pkg/requestcontext"
)

// WithPrincipal adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, the request is returned unchanged.
func WithPrincipal(req *http.Request, userID string, role id.Role) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Principal{
		UserID: parsed,
		Role:   role,
		Name:   "Test User",
		Email:  "test.user@example.com",
	})
	return req.WithContext(ctx)
}
