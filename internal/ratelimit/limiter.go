// Package ratelimit throttles authorization requests per caller with a fixed
// window counter on the shared cache. When the cache cannot answer, the
// configured failure mode decides: allow (open), deny (closed) or fall back
// to an in-process token bucket (local).
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"agentauth/internal/platform/cache"
	"agentauth/internal/platform/config"
	"agentauth/internal/platform/logger"
	"agentauth/internal/ratelimit/metrics"
	"agentauth/internal/ratelimit/models"
	"agentauth/pkg/platform/circuit"
)

type Limiter struct {
	backend cache.Cache
	limit   int
	window  time.Duration
	mode    config.FailureMode
	timeout time.Duration
	breaker *circuit.Breaker
	local   *localLimiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithFailureMode(mode config.FailureMode) Option {
	return func(l *Limiter) {
		l.mode = mode
	}
}

func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = lg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func New(backend cache.Cache, limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if backend == nil {
		return nil, errors.New("rate limit backend is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limit and window must be positive")
	}
	l := &Limiter{
		backend: backend,
		limit:   limit,
		window:  window,
		mode:    config.FailOpen,
		timeout: 50 * time.Millisecond,
		breaker: circuit.New("ratelimit"),
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.local = newLocalLimiter(limit, window)
	return l, nil
}

// Check counts one request for callerID and reports whether it is within the
// limit. It never returns an error: backend failures resolve to the failure
// mode.
func (l *Limiter) Check(ctx context.Context, callerID string, now time.Time) models.Result {
	res, err := l.checkPrimary(ctx, callerID, now)
	if err == nil {
		usePrimary, change := l.breaker.RecordSuccess()
		if change.Closed {
			l.metrics.SetCircuitOpen(false)
			l.logger.InfoContext(ctx, "ratelimit_circuit_closed")
		}
		if usePrimary {
			l.metrics.IncrementCheck(outcome(res.Allowed, "allowed", "limited"))
			return res
		}
		return l.degraded(ctx, callerID, now, nil)
	}

	l.metrics.IncrementBackendError()
	if _, change := l.breaker.RecordFailure(); change.Opened {
		l.metrics.SetCircuitOpen(true)
		l.logger.WarnContext(ctx, "ratelimit_circuit_opened", "failure_mode", l.mode)
	}
	return l.degraded(ctx, callerID, now, err)
}

func (l *Limiter) checkPrimary(ctx context.Context, callerID string, now time.Time) (models.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	windowStart := now.Truncate(l.window)
	count, err := l.backend.IncrWithExpire(ctx, models.NewKey(callerID, windowStart), 2*l.window)
	if err != nil {
		return models.Result{}, err
	}

	resetAt := windowStart.Add(l.window)
	res := models.Result{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(0, l.limit-int(count)),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = ceilSeconds(resetAt.Sub(now))
	}
	return res, nil
}

func (l *Limiter) degraded(ctx context.Context, callerID string, now time.Time, cause error) models.Result {
	switch l.mode {
	case config.FailClosed:
		l.metrics.IncrementCheck("fail_closed")
		l.logger.WarnContext(ctx, "ratelimit_fail_closed", "caller_id", callerID, "error", cause)
		return models.Result{
			Allowed:    false,
			Limit:      l.limit,
			ResetAt:    now.Add(l.window),
			RetryAfter: ceilSeconds(l.window),
			Degraded:   true,
		}
	case config.FailLocal:
		res := l.local.allow(callerID, now)
		l.metrics.IncrementCheck(outcome(res.Allowed, "local_allowed", "local_limited"))
		return res
	default:
		l.metrics.IncrementCheck("fail_open")
		l.logger.WarnContext(ctx, "ratelimit_fail_open", "caller_id", callerID, "error", cause)
		return models.Result{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit,
			ResetAt:   now.Add(l.window),
			Degraded:  true,
		}
	}
}

func outcome(allowed bool, yes, no string) string {
	if allowed {
		return yes
	}
	return no
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
