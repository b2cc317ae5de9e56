// Package codes is the single authoritative table of live authorization
// codes. Authorization writes to it, verification reads and claims from it,
// both through the shared cache so every instance sees the same state.
package codes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentauth/internal/authorization/models"
	"agentauth/internal/platform/cache"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/secrets"
)

const (
	// Prefix starts every authorization code.
	Prefix = "authz_"

	codeBytes     = 16
	codeKeyPrefix = "authz:code:"
	usedKeyPrefix = "authz:used:"
	// usedGrace keeps the used marker around slightly longer than the code.
	usedGrace = time.Minute
)

// NewCode returns "authz_" followed by 128 random bits, base64url encoded.
func NewCode() (string, error) {
	s, err := secrets.Generate(codeBytes)
	if err != nil {
		return "", err
	}
	return Prefix + s, nil
}

type Table struct {
	cache cache.Cache
}

func New(c cache.Cache) (*Table, error) {
	if c == nil {
		return nil, errors.New("code table cache is required")
	}
	return &Table{cache: c}, nil
}

// Put stores rec until ttl elapses.
func (t *Table) Put(ctx context.Context, rec *models.Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode authorization record: %w", err)
	}
	if err := t.cache.Set(ctx, codeKeyPrefix+rec.Code, raw, ttl); err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	return nil
}

// Get returns the live record for code with IsUsed reflecting any claim.
// sentinel.ErrNotFound when the code is unknown or its entry has lapsed.
func (t *Table) Get(ctx context.Context, code string) (*models.Record, error) {
	raw, err := t.cache.Get(ctx, codeKeyPrefix+code)
	if errors.Is(err, cache.ErrMiss) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode authorization record: %w", err)
	}

	_, err = t.cache.Get(ctx, usedKeyPrefix+code)
	switch {
	case err == nil:
		rec.IsUsed = true
	case !errors.Is(err, cache.ErrMiss):
		return nil, fmt.Errorf("read authorization claim: %w", err)
	}
	return &rec, nil
}

// Claim marks code used. Exactly one caller gets true.
func (t *Table) Claim(ctx context.Context, code string, expiresAt, now time.Time) (bool, error) {
	ttl := expiresAt.Sub(now) + usedGrace
	ok, err := t.cache.SetNX(ctx, usedKeyPrefix+code, []byte(now.UTC().Format(time.RFC3339Nano)), ttl)
	if err != nil {
		return false, fmt.Errorf("claim authorization code: %w", err)
	}
	return ok, nil
}
