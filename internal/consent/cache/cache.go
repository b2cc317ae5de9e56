// Package cache is the read-through consent cache on the authorization path.
//
// Lookups hit the shared cache first and fall back to the durable store,
// populating the cache on the way out. A consent whose status cannot be
// confirmed is reported as ErrUnavailable; callers must treat that as a
// denial.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"agentauth/internal/consent/metrics"
	"agentauth/internal/consent/models"
	platformcache "agentauth/internal/platform/cache"
	"agentauth/internal/platform/logger"
	"agentauth/pkg/platform/sentinel"
)

//go:generate mockgen -source=cache.go -destination=mocks/mocks.go -package=mocks Reader

// Reader is the durable consent source.
type Reader interface {
	FindByID(ctx context.Context, id string) (*models.Consent, error)
}

const (
	DefaultTTL          = 5 * time.Minute
	DefaultStoreTimeout = 100 * time.Millisecond
	DefaultStoreRetries = 2
	keyPrefix           = "consent:"
)

// ErrUnavailable means the consent's status is unknown.
var ErrUnavailable = fmt.Errorf("consent status unknown: %w", sentinel.ErrUnavailable)

type Cache struct {
	store        Reader
	backend      platformcache.Cache
	ttl          time.Duration
	storeTimeout time.Duration
	retries      uint64
	group        singleflight.Group
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithStoreRetries sets how many times a failed store read is retried.
func WithStoreRetries(n uint64) Option {
	return func(c *Cache) {
		c.retries = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(store Reader, backend platformcache.Cache, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("consent store is required")
	}
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}
	c := &Cache{
		store:        store,
		backend:      backend,
		ttl:          DefaultTTL,
		storeTimeout: DefaultStoreTimeout,
		retries:      DefaultStoreRetries,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the consent. Errors: sentinel.ErrNotFound when it does not
// exist, ErrUnavailable when neither the cache nor the store could answer.
func (c *Cache) Get(ctx context.Context, id string) (*models.Consent, error) {
	key := keyPrefix + id

	raw, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		var consent models.Consent
		if jsonErr := json.Unmarshal(raw, &consent); jsonErr == nil {
			c.metrics.IncrementLookup("hit")
			return &consent, nil
		}
		c.logger.WarnContext(ctx, "consent_cache_corrupt_entry", "consent_id", id)
	case !errors.Is(err, platformcache.ErrMiss):
		// The store is authoritative, so a cache outage degrades to a store read.
		c.logger.WarnContext(ctx, "consent_cache_read_failed", "consent_id", id, "error", err)
	}

	c.metrics.IncrementLookup("miss")
	v, err, _ := c.group.Do(id, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.metrics.IncrementLookup("not_found")
			return nil, sentinel.ErrNotFound
		}
		c.metrics.IncrementLookup("unavailable")
		c.logger.ErrorContext(ctx, "consent_lookup_failed", "consent_id", id, "error", err)
		return nil, ErrUnavailable
	}
	consent := *v.(*models.Consent)
	return &consent, nil
}

// load reads the store with a bounded retry budget and populates the cache.
func (c *Cache) load(ctx context.Context, id string) (*models.Consent, error) {
	var consent *models.Consent
	start := time.Now()

	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
		defer cancel()
		found, err := c.store.FindByID(attemptCtx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		consent = found
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx))
	c.metrics.ObserveStoreLatency(time.Since(start))
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(consent); err == nil {
		if err := c.backend.Set(ctx, keyPrefix+id, raw, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "consent_cache_write_failed", "consent_id", id, "error", err)
		}
	}
	return consent, nil
}

// Invalidate drops a cached consent. Called on revoke.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	c.metrics.IncrementInvalidations()
	if err := c.backend.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("invalidate consent %s: %w", id, err)
	}
	return nil
}
