// Package redis keeps velocity history in Redis so every instance scores
// against the same per-user state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"agentauth/internal/velocity"
	"agentauth/pkg/domain"
)

const (
	stateTTL        = 24 * time.Hour
	historyTTL      = 30 * 24 * time.Hour
	frequencyWindow = time.Minute
)

type Store struct {
	client goredis.UniversalClient
}

func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

func key(userID, suffix string) string {
	return "velocity:user:" + userID + ":" + suffix
}

func (s *Store) Snapshot(ctx context.Context, userID, merchantID string, now time.Time) (velocity.State, error) {
	lo := strconv.FormatInt(now.Add(-frequencyWindow).UnixMilli(), 10)
	hi := strconv.FormatInt(now.UnixMilli(), 10)

	pipe := s.client.Pipeline()
	avgCmd := pipe.Get(ctx, key(userID, "avg_amount"))
	countCmd := pipe.ZCount(ctx, key(userID, "txns"), "("+lo, hi)
	lastCmd := pipe.HGetAll(ctx, key(userID, "last"))
	hoursCmd := pipe.SMembers(ctx, key(userID, "typical_hours"))
	var merchantCmd *goredis.BoolCmd
	if merchantID != "" {
		merchantCmd = pipe.SIsMember(ctx, key(userID, "merchants"), merchantID)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return velocity.State{}, fmt.Errorf("read velocity state: %w", err)
	}

	var state velocity.State
	if raw, err := avgCmd.Result(); err == nil {
		avg, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return velocity.State{}, fmt.Errorf("corrupt average for %s: %w", userID, err)
		}
		state.AvgAmount = domain.Amount(avg)
	}
	state.RecentCount = int(countCmd.Val())
	if last := lastCmd.Val(); len(last) > 0 {
		state.LastCountry = last["country"]
		if ms, err := strconv.ParseInt(last["at"], 10, 64); err == nil {
			state.LastAt = time.UnixMilli(ms).UTC()
		}
	}
	state.TypicalHours = make(map[int]bool)
	for _, h := range hoursCmd.Val() {
		if n, err := strconv.Atoi(h); err == nil {
			state.TypicalHours[n] = true
		}
	}
	if merchantCmd != nil {
		state.KnownMerchant = merchantCmd.Val()
	}
	return state, nil
}

func (s *Store) Record(ctx context.Context, tx velocity.Transaction) error {
	avgKey := key(tx.UserID, "avg_amount")
	var prev domain.Amount
	raw, err := s.client.Get(ctx, avgKey).Result()
	switch {
	case err == nil:
		n, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr == nil {
			prev = domain.Amount(n)
		}
	case !errors.Is(err, goredis.Nil):
		return fmt.Errorf("read average: %w", err)
	}

	atMs := tx.At.UnixMilli()
	txnsKey := key(tx.UserID, "txns")
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, avgKey, int64(velocity.NextAverage(prev, tx.Amount)), stateTTL)

		pipe.ZAdd(ctx, txnsKey, goredis.Z{Score: float64(atMs), Member: uuid.NewString()})
		pipe.ZRemRangeByScore(ctx, txnsKey, "-inf", "("+strconv.FormatInt(atMs-frequencyWindow.Milliseconds(), 10))
		pipe.Expire(ctx, txnsKey, 2*frequencyWindow)

		if tx.MerchantID != "" {
			pipe.SAdd(ctx, key(tx.UserID, "merchants"), tx.MerchantID)
			pipe.Expire(ctx, key(tx.UserID, "merchants"), historyTTL)
		}

		lastKey := key(tx.UserID, "last")
		if tx.Country != "" {
			pipe.HSet(ctx, lastKey, "country", tx.Country, "at", atMs)
		} else {
			pipe.HSet(ctx, lastKey, "at", atMs)
		}
		pipe.Expire(ctx, lastKey, stateTTL)

		pipe.SAdd(ctx, key(tx.UserID, "typical_hours"), tx.At.UTC().Hour())
		pipe.Expire(ctx, key(tx.UserID, "typical_hours"), historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write velocity state: %w", err)
	}
	return nil
}
