package tx

import (
	"context"
	"sync"
	"time"

	dErrors "agentauth/pkg/domain-errors"
)

// numShards bounds memory while keeping contention low: keys are spread
// across shards by FNV-1a hash instead of taking one global lock.
const numShards = 128

const defaultLockTimeout = 5 * time.Second

// ShardedLocker serializes work for the same key within one process.
type ShardedLocker struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedLocker(timeout time.Duration) *ShardedLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &ShardedLocker{timeout: timeout}
}

// RunLocked runs fn while holding the shard for key.
func (l *ShardedLocker) RunLocked(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	shard := &l.shards[hashKey(key)%numShards]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	return fn(ctx)
}

func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
