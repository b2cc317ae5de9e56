// Package memory keeps velocity history in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"agentauth/internal/velocity"
	"agentauth/pkg/domain"
)

const frequencyWindow = time.Minute

type userState struct {
	avg         domain.Amount
	recent      []time.Time
	merchants   map[string]bool
	lastCountry string
	lastAt      time.Time
	hours       map[int]bool
}

type Store struct {
	mu    sync.Mutex
	users map[string]*userState
}

func New() *Store {
	return &Store{users: make(map[string]*userState)}
}

func (s *Store) Snapshot(_ context.Context, userID, merchantID string, now time.Time) (velocity.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return velocity.State{}, nil
	}
	cutoff := now.Add(-frequencyWindow)
	count := 0
	for _, t := range u.recent {
		if t.After(cutoff) && !t.After(now) {
			count++
		}
	}
	hours := make(map[int]bool, len(u.hours))
	for h := range u.hours {
		hours[h] = true
	}
	return velocity.State{
		AvgAmount:     u.avg,
		RecentCount:   count,
		KnownMerchant: merchantID != "" && u.merchants[merchantID],
		LastCountry:   u.lastCountry,
		LastAt:        u.lastAt,
		TypicalHours:  hours,
	}, nil
}

func (s *Store) Record(_ context.Context, tx velocity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[tx.UserID]
	if !ok {
		u = &userState{merchants: make(map[string]bool), hours: make(map[int]bool)}
		s.users[tx.UserID] = u
	}
	u.avg = velocity.NextAverage(u.avg, tx.Amount)

	cutoff := tx.At.Add(-frequencyWindow)
	kept := u.recent[:0]
	for _, t := range u.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	u.recent = append(kept, tx.At)

	if tx.MerchantID != "" {
		u.merchants[tx.MerchantID] = true
	}
	if tx.Country != "" {
		u.lastCountry = tx.Country
	}
	u.lastAt = tx.At
	u.hours[tx.At.UTC().Hour()] = true
	return nil
}
