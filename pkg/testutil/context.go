package testutil

import (
	"net/http"

	"personhood/pkg/requestcontext"
)

// WithAccountID adds an account ID to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithAccountID(req *http.Request, accountID string) *http.Request {
	if accountID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithAccountID(req.Context(), accountID))
}

// WithRequestID adds a correlation ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
