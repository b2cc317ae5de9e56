package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agentauth/internal/ratelimit/models"
)

const maxLocalCallers = 10000

// localLimiter is the in-process token bucket used by the "local" failure
// mode while the shared backend is unavailable. Each instance limits on its
// own, so the effective limit scales with the number of instances.
type localLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   int
	window  time.Duration
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	return &localLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		window:  window,
	}
}

func (l *localLimiter) allow(callerID string, now time.Time) models.Result {
	l.mu.Lock()
	b, ok := l.buckets[callerID]
	if !ok {
		if len(l.buckets) >= maxLocalCallers {
			l.buckets = make(map[string]*rate.Limiter)
		}
		b = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.buckets[callerID] = b
	}
	l.mu.Unlock()

	res := models.Result{Limit: l.limit, Degraded: true}
	if b.AllowN(now, 1) {
		res.Allowed = true
		res.Remaining = int(b.TokensAt(now))
		res.ResetAt = now.Add(l.window)
		return res
	}
	wait := b.ReserveN(now, 1)
	delay := wait.DelayFrom(now)
	wait.CancelAt(now)
	res.ResetAt = now.Add(delay)
	res.RetryAfter = ceilSeconds(delay)
	return res
}
