//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentauth/internal/velocity"
	"agentauth/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Store
	now   time.Time
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = New(s.redis.Client)
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *RedisStoreSuite) TestEmptyState() {
	state, err := s.store.Snapshot(context.Background(), "nobody", "m", s.now)
	s.Require().NoError(err)
	s.False(state.HasHistory())
	s.Zero(state.RecentCount)
	s.False(state.KnownMerchant)
	s.True(state.LastAt.IsZero())
}

func (s *RedisStoreSuite) TestRecordAndSnapshot() {
	ctx := context.Background()
	s.Require().NoError(s.store.Record(ctx, velocity.Transaction{
		UserID: "usr_1", Amount: 2000, MerchantID: "github", Country: "US", At: s.now.Add(-30 * time.Second),
	}))
	s.Require().NoError(s.store.Record(ctx, velocity.Transaction{
		UserID: "usr_1", Amount: 12000, MerchantID: "amazon", At: s.now.Add(-10 * time.Second),
	}))

	state, err := s.store.Snapshot(ctx, "usr_1", "github", s.now)
	s.Require().NoError(err)
	s.Equal(int64(3000), int64(state.AvgAmount))
	s.Equal(2, state.RecentCount)
	s.True(state.KnownMerchant)
	s.Equal("US", state.LastCountry, "a transaction without country keeps the last known one")
	s.Equal(s.now.Add(-10*time.Second), state.LastAt)
	s.True(state.TypicalHours[s.now.Add(-10*time.Second).Hour()])

	later, err := s.store.Snapshot(ctx, "usr_1", "ebay", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(0, later.RecentCount)
	s.False(later.KnownMerchant)
}
