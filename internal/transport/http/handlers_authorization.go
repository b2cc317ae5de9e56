package httptransport

import (
	"context"
	"net/http"

	authzModels "agentauth/internal/authorization/models"
	"agentauth/internal/ratelimit"
	verifyModels "agentauth/internal/verification/models"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/httputil"
	"agentauth/pkg/requestcontext"
)

// handleAuthorize decides an agent's purchase. Every decision is a 200
// except rate limiting (429) and infrastructure denials (503), which must not
// be cached as the answer for their idempotency key.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req authzModels.Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid_authorize_request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.authorizer.Authorize(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "authorize_failed", err)
		return
	}
	ratelimit.WriteHeaders(w, result.RateLimit)
	httputil.WriteJSON(w, decisionStatus(result), result)
}

func decisionStatus(result *authzModels.Result) int {
	if result.Decision != authzModels.DecisionDeny {
		return http.StatusOK
	}
	switch result.Reason {
	case domain.ReasonRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.ReasonServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

// handleVerify redeems an authorization code for a merchant. Failed
// redemptions are 200 with valid=false and a stable reason code.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyModels.Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid_verify_request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.redeemer.Redeem(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "verify_failed", err)
		return
	}
	status := http.StatusOK
	if result.Error == domain.ReasonServiceUnavailable {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, result)
}

// writeServiceError renders a service error. Only internal failures are
// logged at error level; the body never carries their detail.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, event string, err error) {
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, event, attrs...)
	} else {
		h.logger.WarnContext(ctx, event, attrs...)
	}
	httputil.WriteError(w, err)
}
