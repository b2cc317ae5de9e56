// Package cache is the shared key/value abstraction behind the consent cache,
// the authorization code table, idempotency records and rate-limit counters.
// Memory backs single-instance deployments and tests; Redis is used when
// state must be shared across instances.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key does not exist or has expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL key/value store with atomic set-if-absent and counters.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// TTL returns the remaining lifetime. Zero means no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// IncrWithExpire increments a counter, setting ttl when the key is created.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
