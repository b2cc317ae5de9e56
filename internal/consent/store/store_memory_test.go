package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentauth/internal/consent/models"
	"agentauth/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.now = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Create(context.Background(), &models.Consent{
		ID:          "cns_1",
		UserID:      "usr_1",
		DeveloperID: "dev_1",
		Constraints: models.Constraints{MaxAmount: 5000, Currency: "USD", AllowedMerchants: []string{"github"}},
		ExpiresAt:   s.now.Add(time.Hour),
		IsActive:    true,
	}))
}

func (s *InMemoryStoreSuite) TestFindByID() {
	ctx := context.Background()

	s.Run("returns a copy", func() {
		c, err := s.store.FindByID(ctx, "cns_1")
		s.Require().NoError(err)
		c.Constraints.AllowedMerchants[0] = "mutated"

		again, err := s.store.FindByID(ctx, "cns_1")
		s.Require().NoError(err)
		s.Equal("github", again.Constraints.AllowedMerchants[0])
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestCreateDuplicate() {
	err := s.store.Create(context.Background(), &models.Consent{ID: "cns_1"})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestRevokeIsIdempotent() {
	ctx := context.Background()

	first, err := s.store.Revoke(ctx, "cns_1", s.now)
	s.Require().NoError(err)
	s.False(first.IsActive)
	s.Require().NotNil(first.RevokedAt)

	second, err := s.store.Revoke(ctx, "cns_1", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(*first.RevokedAt, *second.RevokedAt)

	_, err = s.store.Revoke(ctx, "missing", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestClaimUse() {
	ctx := context.Background()

	ok, err := s.store.ClaimUse(ctx, "cns_1", s.now)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.ClaimUse(ctx, "cns_1", s.now.Add(time.Second))
	s.Require().NoError(err)
	s.False(ok)

	c, err := s.store.FindByID(ctx, "cns_1")
	s.Require().NoError(err)
	s.Require().NotNil(c.UsedAt)
	s.Equal(s.now, *c.UsedAt)

	s.Require().NoError(s.store.ReleaseUse(ctx, "cns_1"))
	ok, err = s.store.ClaimUse(ctx, "cns_1", s.now)
	s.Require().NoError(err)
	s.True(ok)

	s.Run("unknown consent", func() {
		ok, err := s.store.ClaimUse(ctx, "missing", s.now)
		s.Require().NoError(err)
		s.False(ok)
		s.ErrorIs(s.store.ReleaseUse(ctx, "missing"), sentinel.ErrNotFound)
	})
}
