// Package velocity scores a transaction against the user's recent spending
// pattern. Five independent rules (amount spike, frequency, new merchant,
// geography, time of day) each pass, warn or block; their weighted sum is the
// risk score behind the allow / verify / decline recommendation.
//
// History is updated only after a transaction is allowed, never from the
// transaction under evaluation.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agentauth/internal/platform/logger"
	"agentauth/internal/velocity/metrics"
	"agentauth/pkg/platform/sentinel"
)

const DefaultTimeout = 100 * time.Millisecond

// ErrUnavailable means the user's history could not be read in time.
var ErrUnavailable = fmt.Errorf("velocity state unavailable: %w", sentinel.ErrUnavailable)

// StateStore holds per-user history.
type StateStore interface {
	// Snapshot returns the user's state at now, with KnownMerchant set for
	// merchantID.
	Snapshot(ctx context.Context, userID, merchantID string, now time.Time) (State, error)
	// Record folds a completed transaction into the user's state.
	Record(ctx context.Context, tx Transaction) error
}

type Engine struct {
	store   StateStore
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(store StateStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("velocity state store is required")
	}
	e := &Engine{
		store:   store,
		timeout: DefaultTimeout,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Check evaluates tx. The error is ErrUnavailable when state could not be
// read; the caller decides the failure policy.
func (e *Engine) Check(ctx context.Context, tx Transaction) (Result, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	state, err := e.store.Snapshot(readCtx, tx.UserID, tx.MerchantID, tx.At)
	if err != nil {
		e.metrics.IncrementStoreErrors("snapshot")
		e.logger.WarnContext(ctx, "velocity_state_unavailable", "user_id", tx.UserID, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	result := Evaluate(tx, state)
	e.metrics.ObserveCheck(string(result.Recommendation), result.RiskScore)
	if result.Recommendation != RecommendAllow {
		e.logger.InfoContext(ctx, "velocity_flagged",
			"user_id", tx.UserID,
			"risk_score", result.RiskScore,
			"recommendation", result.Recommendation,
			"reasons", result.Reasons(),
		)
	}
	return result, nil
}

// Record updates history after an allowed transaction.
func (e *Engine) Record(ctx context.Context, tx Transaction) error {
	writeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.Record(writeCtx, tx); err != nil {
		e.metrics.IncrementStoreErrors("record")
		return fmt.Errorf("record velocity state: %w", err)
	}
	return nil
}
