// Package redis keeps audit chains in Redis: a head hash and a sorted set of
// entries scored by sequence per tenant.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"agentauth/internal/audit"
	"agentauth/pkg/platform/tx"
)

const maxWatchRetries = 10

// ErrContended is returned when the head kept changing under WATCH.
var ErrContended = errors.New("audit chain head contended")

type Store struct {
	client goredis.UniversalClient
	locks  *tx.ShardedLocker
}

func New(client goredis.UniversalClient) *Store {
	return &Store{client: client, locks: tx.NewShardedLocker(0)}
}

func headKey(tenant string) string  { return "audit:" + tenant + ":head" }
func chainKey(tenant string) string { return "audit:" + tenant + ":chain" }

// Append serializes local writers with a tenant lock and guards against other
// instances with WATCH on the head key.
func (s *Store) Append(ctx context.Context, tenantID string, build audit.BuildFunc) (*audit.Entry, error) {
	var appended *audit.Entry
	err := s.locks.RunLocked(ctx, tenantID, func(ctx context.Context) error {
		for range maxWatchRetries {
			entry, err := s.tryAppend(ctx, tenantID, build)
			if errors.Is(err, goredis.TxFailedErr) {
				continue
			}
			if err != nil {
				return err
			}
			appended = entry
			return nil
		}
		return ErrContended
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

func (s *Store) tryAppend(ctx context.Context, tenantID string, build audit.BuildFunc) (*audit.Entry, error) {
	var entry *audit.Entry
	hk := headKey(tenantID)
	err := s.client.Watch(ctx, func(txn *goredis.Tx) error {
		fields, err := txn.HGetAll(ctx, hk).Result()
		if err != nil {
			return fmt.Errorf("read chain head: %w", err)
		}
		head, err := parseHead(fields)
		if err != nil {
			return err
		}
		entry, err = build(head)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode audit entry: %w", err)
		}
		_, err = txn.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZAdd(ctx, chainKey(tenantID), goredis.Z{Score: float64(entry.Sequence), Member: raw})
			pipe.HSet(ctx, hk, "sequence", entry.Sequence, "hash", entry.RecordHash)
			return nil
		})
		return err
	}, hk)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func parseHead(fields map[string]string) (audit.Head, error) {
	if len(fields) == 0 {
		return audit.Head{}, nil
	}
	seq, err := strconv.ParseInt(fields["sequence"], 10, 64)
	if err != nil {
		return audit.Head{}, fmt.Errorf("corrupt chain head: %w", err)
	}
	return audit.Head{Sequence: seq, Hash: fields["hash"]}, nil
}

func (s *Store) List(ctx context.Context, tenantID string, filter audit.Filter) ([]audit.Entry, error) {
	members, err := s.client.ZRange(ctx, chainKey(tenantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit chain: %w", err)
	}
	var out []audit.Entry
	for _, m := range members {
		var e audit.Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		if !filter.Matches(&e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
