package models

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"time"

	"agentauth/pkg/domain"
	pkgstrings "agentauth/pkg/platform/strings"
)

// Constraints bound what a consent authorizes.
type Constraints struct {
	MaxAmount         domain.Amount   `json:"max_amount"`
	Currency          domain.Currency `json:"currency"`
	AllowedMerchants  []string        `json:"allowed_merchants,omitempty"`
	AllowedCategories []string        `json:"allowed_categories,omitempty"`
}

// Normalized returns a copy with canonical currency and merchant/category sets.
func (c Constraints) Normalized() Constraints {
	if cur, err := domain.ParseCurrency(string(c.Currency)); err == nil {
		c.Currency = cur
	}
	c.AllowedMerchants = pkgstrings.NormalizeSet(c.AllowedMerchants)
	c.AllowedCategories = pkgstrings.NormalizeSet(c.AllowedCategories)
	return c
}

// Consent is a human-issued grant of spending authority to an agent. It is
// created upstream and only mutated here by revocation and by the
// single-use claim, which sets UsedAt.
type Consent struct {
	ID          string      `json:"consent_id"`
	UserID      string      `json:"user_id"`
	DeveloperID string      `json:"developer_id"`
	Intent      string      `json:"intent"`
	Constraints Constraints `json:"constraints"`
	ExpiresAt   time.Time   `json:"expires_at"`
	SingleUse   bool        `json:"single_use"`
	IsActive    bool        `json:"is_active"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty"`
	UsedAt      *time.Time  `json:"used_at,omitempty"`
	Signature   string      `json:"signature"`
	PublicKey   string      `json:"public_key"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TokenGrant is a delegation token handed to the agent acting on a consent.
type TokenGrant struct {
	ConsentID       string    `json:"consent_id"`
	DelegationToken string    `json:"delegation_token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Liveness outcomes.
const (
	LivenessOK       = ""
	LivenessInactive = "consent_inactive"
	LivenessRevoked  = "consent_revoked"
	LivenessExpired  = "consent_expired"
)

// Liveness returns LivenessOK when the consent may authorize at now, or the
// first failed condition.
func (c *Consent) Liveness(now time.Time) string {
	switch {
	case c.RevokedAt != nil:
		return LivenessRevoked
	case !c.IsActive:
		return LivenessInactive
	case !now.Before(c.ExpiresAt):
		return LivenessExpired
	default:
		return LivenessOK
	}
}

// IsLive reports is_active ∧ ¬revoked ∧ ¬expired.
func (c *Consent) IsLive(now time.Time) bool {
	return c.Liveness(now) == LivenessOK
}

// Revoke marks the consent revoked and inactive.
func (c *Consent) Revoke(at time.Time) {
	t := at.UTC()
	c.RevokedAt = &t
	c.IsActive = false
}

// signedPayload is the field set the user's key signs. Field order is fixed.
type signedPayload struct {
	ConsentID         string   `json:"consent_id"`
	UserID            string   `json:"user_id"`
	DeveloperID       string   `json:"developer_id"`
	Intent            string   `json:"intent"`
	MaxAmount         string   `json:"max_amount"`
	Currency          string   `json:"currency"`
	AllowedMerchants  []string `json:"allowed_merchants"`
	AllowedCategories []string `json:"allowed_categories"`
	ExpiresAt         string   `json:"expires_at"`
	SingleUse         bool     `json:"single_use"`
}

// SigningPayload returns the canonical bytes covered by Signature.
func (c *Consent) SigningPayload() []byte {
	cons := c.Constraints.Normalized()
	p := signedPayload{
		ConsentID:         c.ID,
		UserID:            c.UserID,
		DeveloperID:       c.DeveloperID,
		Intent:            c.Intent,
		MaxAmount:         cons.MaxAmount.String(),
		Currency:          string(cons.Currency),
		AllowedMerchants:  nonNil(cons.AllowedMerchants),
		AllowedCategories: nonNil(cons.AllowedCategories),
		ExpiresAt:         c.ExpiresAt.UTC().Format(time.RFC3339),
		SingleUse:         c.SingleUse,
	}
	b, _ := json.Marshal(p)
	return b
}

// Sign sets Signature and PublicKey using the user's key. Upstream issuance
// does this; exposed for seeding and tests.
func (c *Consent) Sign(key ed25519.PrivateKey) {
	c.PublicKey = base64.StdEncoding.EncodeToString(key.Public().(ed25519.PublicKey))
	c.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(key, c.SigningPayload()))
}

// VerifySignature reports whether Signature is a valid Ed25519 signature of
// the signing payload under PublicKey. Missing material is invalid.
func (c *Consent) VerifySignature() bool {
	pub, err := base64.StdEncoding.DecodeString(c.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(c.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), c.SigningPayload(), sig)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
