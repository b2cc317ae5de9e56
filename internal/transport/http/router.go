package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentauth/internal/idempotency"
	"agentauth/internal/platform/metrics"
	"agentauth/internal/platform/middleware"
	"agentauth/pkg/platform/middleware/metadata"
	"agentauth/pkg/platform/middleware/requesttime"
)

const requestTimeout = 10 * time.Second

// RouterConfig carries what the router needs beyond the handler.
type RouterConfig struct {
	Idempotency *idempotency.Guard
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// NewRouter wires all public endpoints. Mutating routes sit behind the
// idempotency guard.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = h.logger
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Caller)
	r.Use(middleware.Recovery(log, cfg.Metrics))
	r.Use(middleware.AccessLog(log, cfg.Metrics))

	r.Get("/healthz", h.handleHealth)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(timeout(requestTimeout))
		v1.Get("/proof/public-key", h.handlePublicKey)
		v1.Get("/consents/{id}", h.handleGetConsent)
		v1.Get("/audit/{tenant}/export", h.handleAuditExport)
		v1.Get("/audit/{tenant}/verify", h.handleAuditVerify)

		v1.Group(func(m chi.Router) {
			if cfg.Idempotency != nil {
				m.Use(cfg.Idempotency.Middleware)
			}
			m.Post("/authorize", h.handleAuthorize)
			m.Post("/verify", h.handleVerify)
			m.Post("/consents/{id}/token", h.handleIssueConsentToken)
			m.Post("/consents/{id}/revoke", h.handleRevokeConsent)
		})
	})
	return r
}

// timeout bounds the request context. Handlers observe cancellation through
// the services they call.
func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
