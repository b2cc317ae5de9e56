package testutil

import (
	"net/http"
	"time"

	"agentauth/pkg/requestcontext"
)

// WithCaller attributes the request to callerID, as the caller middleware would.
func WithCaller(req *http.Request, callerID string) *http.Request {
	return req.WithContext(requestcontext.WithCallerID(req.Context(), callerID))
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithIdempotencyKey sets the Idempotency-Key header.
func WithIdempotencyKey(req *http.Request, key string) *http.Request {
	req.Header.Set("Idempotency-Key", key)
	return req
}
