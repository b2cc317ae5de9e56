package store

import (
	"context"
	"sync"
	"time"

	"agentauth/internal/consent/models"
	"agentauth/pkg/platform/sentinel"
)

// InMemoryStore keeps consents in a map. Used for local runs and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[string]models.Consent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[string]models.Consent)}
}

func (s *InMemoryStore) Create(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[consent.ID]; exists {
		return sentinel.ErrConflict
	}
	s.consents[consent.ID] = clone(consent)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&c)
	return &out, nil
}

// Revoke is idempotent: an already revoked consent keeps its original revoked_at.
func (s *InMemoryStore) Revoke(_ context.Context, id string, at time.Time) (*models.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.RevokedAt == nil {
		c.Revoke(at)
		s.consents[id] = c
	}
	out := clone(&c)
	return &out, nil
}

// ClaimUse sets used_at if it is unset. Only the first caller gets true;
// an unknown consent is never claimable.
func (s *InMemoryStore) ClaimUse(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consents[id]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	t := at.UTC()
	c.UsedAt = &t
	s.consents[id] = c
	return true, nil
}

// ReleaseUse clears used_at after an ALLOW that could not be completed.
func (s *InMemoryStore) ReleaseUse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consents[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.UsedAt = nil
	s.consents[id] = c
	return nil
}

func clone(c *models.Consent) models.Consent {
	out := *c
	out.Constraints.AllowedMerchants = append([]string(nil), c.Constraints.AllowedMerchants...)
	out.Constraints.AllowedCategories = append([]string(nil), c.Constraints.AllowedCategories...)
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	if c.UsedAt != nil {
		t := *c.UsedAt
		out.UsedAt = &t
	}
	return out
}
