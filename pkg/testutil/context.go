package testutil

import (
	"net/http"
	"time"

	"diligence/pkg/requestcontext"
)

// WithRequestID adds a request ID to the request context, as the requestid
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithClient sets the client label that audit events carry.
func WithClient(req *http.Request, client string) *http.Request {
	return req.WithContext(requestcontext.WithClient(req.Context(), client))
}
