package idempotency

import (
	"bytes"
	"context"
	"net/http"

	"agentauth/pkg/platform/httputil"
	"agentauth/pkg/requestcontext"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	HeaderEchoKey  = "X-Idempotency-Key"
)

// Error codes returned by the middleware.
const (
	ErrMissingKey  = "missing_idempotency_key"
	ErrInvalidKey  = "invalid_idempotency_key"
	ErrConflict    = "idempotency_conflict"
	ErrUnavailable = "idempotency_unavailable"
)

// Middleware requires an Idempotency-Key on every request it wraps and runs
// the handler at most once per (caller, method, path, key).
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientKey := r.Header.Get(HeaderKey)
		switch {
		case clientKey == "":
			g.metrics.Observe("rejected")
			httputil.WriteReason(w, http.StatusBadRequest, ErrMissingKey, "Idempotency-Key header is required")
			return
		case !g.ValidKey(clientKey):
			g.metrics.Observe("rejected")
			httputil.WriteReason(w, http.StatusBadRequest, ErrInvalidKey, "Idempotency-Key is too short")
			return
		}

		key := Key(requestcontext.CallerID(ctx), r.Method, r.URL.Path, clientKey)

		cached, err := g.Lookup(ctx, key)
		if err != nil {
			g.unavailable(ctx, w, err)
			return
		}
		if cached != nil {
			g.replay(w, clientKey, cached)
			return
		}

		acquired, err := g.Acquire(ctx, key)
		if err != nil {
			g.unavailable(ctx, w, err)
			return
		}
		if !acquired {
			// The holder may have finished between the lookup and the lock attempt.
			if cached, err := g.Lookup(ctx, key); err == nil && cached != nil {
				g.replay(w, clientKey, cached)
				return
			}
			g.metrics.Observe("conflict")
			httputil.WriteReason(w, http.StatusConflict, ErrConflict, "a request with this Idempotency-Key is in progress")
			return
		}
		defer g.Release(context.WithoutCancel(ctx), key)

		cached, err = g.Lookup(ctx, key)
		if err != nil {
			g.unavailable(ctx, w, err)
			return
		}
		if cached != nil {
			g.replay(w, clientKey, cached)
			return
		}

		w.Header().Set(HeaderReplayed, "false")
		w.Header().Set(HeaderEchoKey, clientKey)
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		g.metrics.Observe("original")

		resp := Response{
			Status:      rec.status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		}
		if err := g.Complete(context.WithoutCancel(ctx), key, resp); err != nil {
			g.logger.ErrorContext(ctx, "idempotency_store_failed", "key", key, "error", err)
		}
	})
}

func (g *Guard) replay(w http.ResponseWriter, clientKey string, resp *Response) {
	g.metrics.Observe("replayed")
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.Header().Set(HeaderEchoKey, clientKey)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (g *Guard) unavailable(ctx context.Context, w http.ResponseWriter, err error) {
	g.metrics.Observe("unavailable")
	g.logger.ErrorContext(ctx, "idempotency_backend_failed", "error", err)
	httputil.WriteReason(w, http.StatusServiceUnavailable, ErrUnavailable, "idempotency store unavailable")
}

// recorder tees the response body so it can be cached.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
