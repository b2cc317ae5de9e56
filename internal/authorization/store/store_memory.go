package store

import (
	"context"
	"sync"
	"time"

	"agentauth/internal/authorization/models"
	"agentauth/pkg/platform/sentinel"
)

// InMemoryStore keeps authorization records in a map. Used for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.Record)}
}

// SaveBatch inserts records, skipping codes that already exist.
func (s *InMemoryStore) SaveBatch(_ context.Context, records []*models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, exists := s.records[r.Code]; exists {
			continue
		}
		s.records[r.Code] = *r
	}
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

// MarkUsed flips is_used once. A second call returns sentinel.ErrAlreadyUsed.
func (s *InMemoryStore) MarkUsed(_ context.Context, code string, at time.Time, verifiedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[code]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.IsUsed {
		return sentinel.ErrAlreadyUsed
	}
	t := at.UTC()
	r.IsUsed = true
	r.UsedAt = &t
	r.VerifiedBy = verifiedBy
	s.records[code] = r
	return nil
}
