// Package idempotency deduplicates mutating requests that carry a
// client-supplied Idempotency-Key. The first request with a key takes a
// distributed lock, runs, and caches a successful response; later requests
// with the same key replay that response without running again.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agentauth/internal/idempotency/metrics"
	"agentauth/internal/platform/cache"
	"agentauth/internal/platform/logger"
)

const (
	DefaultLockTTL     = 60 * time.Second
	DefaultResponseTTL = 24 * time.Hour
	DefaultMinKeyLen   = 16

	keyLen     = 48
	lockPrefix = "idem:lock:"
	respPrefix = "idem:resp:"
)

// Response is a cached handler outcome.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Success reports whether the response is cacheable.
func (r Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

type Guard struct {
	cache       cache.Cache
	lockTTL     time.Duration
	responseTTL time.Duration
	minKeyLen   int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Guard)

func WithLockTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lockTTL = d
		}
	}
}

func WithResponseTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.responseTTL = d
		}
	}
}

func WithMinKeyLength(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.minKeyLen = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(c cache.Cache, opts ...Option) (*Guard, error) {
	if c == nil {
		return nil, errors.New("idempotency cache is required")
	}
	g := &Guard{
		cache:       c,
		lockTTL:     DefaultLockTTL,
		responseTTL: DefaultResponseTTL,
		minKeyLen:   DefaultMinKeyLen,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Key scopes a client key to the caller and endpoint.
func Key(callerID, method, path, clientKey string) string {
	sum := sha256.Sum256([]byte(callerID + "|" + method + "|" + path + "|" + clientKey))
	return hex.EncodeToString(sum[:])[:keyLen]
}

// ValidKey reports whether a client key is long enough.
func (g *Guard) ValidKey(clientKey string) bool {
	return len(clientKey) >= g.minKeyLen
}

// Lookup returns the cached response for key. A miss returns (nil, nil).
func (g *Guard) Lookup(ctx context.Context, key string) (*Response, error) {
	raw, err := g.cache.Get(ctx, respPrefix+key)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading idempotent response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding idempotent response: %w", err)
	}
	return &resp, nil
}

// Acquire takes the processing lock for key. It returns false when another
// request holds it.
func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.cache.SetNX(ctx, lockPrefix+key, []byte("1"), g.lockTTL)
	if err != nil {
		return false, fmt.Errorf("acquiring idempotency lock: %w", err)
	}
	return ok, nil
}

// Complete caches resp when it is a success. The lock is released by Release.
func (g *Guard) Complete(ctx context.Context, key string, resp Response) error {
	if !resp.Success() {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding idempotent response: %w", err)
	}
	if err := g.cache.Set(ctx, respPrefix+key, raw, g.responseTTL); err != nil {
		return fmt.Errorf("caching idempotent response: %w", err)
	}
	return nil
}

func (g *Guard) Release(ctx context.Context, key string) {
	if err := g.cache.Delete(ctx, lockPrefix+key); err != nil {
		g.logger.WarnContext(ctx, "idempotency_lock_release_failed", "key", key, "error", err)
	}
}
