package models

import (
	"fmt"
	"time"
)

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds and only set when the request is denied.
	RetryAfter int
	// Degraded is set when the answer came from the configured failure mode
	// rather than the shared counter.
	Degraded bool
}

// NewKey builds the counter key for a caller's fixed window.
func NewKey(callerID string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", callerID, windowStart.Unix())
}
