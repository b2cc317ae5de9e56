package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentauth/internal/platform/logger"
	"agentauth/internal/platform/metrics"
	"agentauth/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))
	})

	t.Run("inbound id reused", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, "req-123")
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.Equal(t, "req-123", seen)
	})

	t.Run("oversized id replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, strings.Repeat("a", maxRequestIDLen+1))
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.Len(t, seen, 36)
	})
}

func TestCallerIDFor(t *testing.T) {
	keyed := CallerIDFor("sk_live_abcdef", "192.0.2.1")
	assert.True(t, strings.HasPrefix(keyed, "key_"))
	assert.NotContains(t, keyed, "sk_live")
	assert.Equal(t, keyed, CallerIDFor(" sk_live_abcdef ", "198.51.100.1"), "same key, same caller regardless of IP")
	assert.Equal(t, "ip_192.0.2.1", CallerIDFor("", "192.0.2.1"))
	assert.Empty(t, CallerIDFor("", ""))
}

func TestCallerReadsClientIP(t *testing.T) {
	var caller string
	h := Caller(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = requestcontext.CallerID(r.Context())
	}))
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r = r.WithContext(requestcontext.WithClientMetadata(r.Context(), "203.0.113.5", "", "api"))
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "ip_203.0.113.5", caller)
}

func TestRecovery(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var buf bytes.Buffer
	h := Recovery(logger.NewWithWriter(&buf, "info", "json"), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "handler_panic")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Panics))
}

func TestAccessLogRecordsRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(AccessLog(logger.NewWithWriter(&buf, "info", "json"), m))
	r.Post("/v1/consents/{id}/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/consents/cns_1/revoke", nil))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/v1/consents/{id}/revoke", http.MethodPost, "201")))
	assert.Contains(t, buf.String(), `"route":"/v1/consents/{id}/revoke"`)
}
