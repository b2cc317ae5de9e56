// Package memory keeps audit chains in process memory.
package memory

import (
	"context"
	"sync"

	"agentauth/internal/audit"
	"agentauth/pkg/platform/tx"
)

// Store holds one chain per tenant. Appends for a tenant are serialized by a
// per-tenant lock; reads take a snapshot.
type Store struct {
	locks *tx.ShardedLocker

	mu     sync.RWMutex
	chains map[string][]audit.Entry
}

func New() *Store {
	return &Store{
		locks:  tx.NewShardedLocker(0),
		chains: make(map[string][]audit.Entry),
	}
}

func (s *Store) Append(ctx context.Context, tenantID string, build audit.BuildFunc) (*audit.Entry, error) {
	var appended *audit.Entry
	err := s.locks.RunLocked(ctx, tenantID, func(context.Context) error {
		entry, err := build(s.head(tenantID))
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.chains[tenantID] = append(s.chains[tenantID], *entry)
		s.mu.Unlock()
		appended = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

func (s *Store) head(tenantID string) audit.Head {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenantID]
	if len(chain) == 0 {
		return audit.Head{}
	}
	last := chain[len(chain)-1]
	return audit.Head{Sequence: last.Sequence, Hash: last.RecordHash}
}

func (s *Store) List(_ context.Context, tenantID string, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for i := range s.chains[tenantID] {
		e := s.chains[tenantID][i]
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
