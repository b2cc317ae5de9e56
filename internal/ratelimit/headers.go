package ratelimit

import (
	"net/http"
	"strconv"

	"agentauth/internal/ratelimit/models"
)

// WriteHeaders adds the X-RateLimit-* headers, and Retry-After when the
// request was denied.
func WriteHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil || result.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(max(1, result.RetryAfter)))
	}
}
