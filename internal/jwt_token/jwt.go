package jwttoken

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	consentModel "agentauth/internal/consent/models"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	pkgstrings "agentauth/pkg/platform/strings"
	"agentauth/pkg/requestcontext"
)

const (
	DefaultIssuer = "agentauth"
	DefaultTTL    = time.Hour
)

// Claims is the signed consent snapshot carried by a delegation token.
// Constraint checks run against these claims, never a refetched consent.
type Claims struct {
	ConsentID   string                   `json:"consent_id"`
	DeveloperID string                   `json:"developer_id"`
	Intent      string                   `json:"intent,omitempty"`
	Constraints consentModel.Constraints `json:"constraints"`
	SingleUse   bool                     `json:"single_use"`
	jwt.RegisteredClaims
}

// UserID returns the consenting user (the token subject).
func (c *Claims) UserID() string { return c.Subject }

// Purchase is the part of a transaction checked against token constraints.
type Purchase struct {
	Amount           domain.Amount
	Currency         domain.Currency
	MerchantID       string
	MerchantCategory string
}

// VerifyResult is the outcome of Verify. Reason is set iff Valid is false.
// Claims are returned whenever the signature was valid, so callers can
// attribute constraint denials.
type VerifyResult struct {
	Valid  bool
	Claims *Claims
	Reason domain.Reason
}

// Codec issues and verifies delegation tokens (HS256) and proof tokens (EdDSA).
type Codec struct {
	signingKey []byte
	proofKey   ed25519.PrivateKey
	issuer     string
	ttl        time.Duration
}

type Option func(*Codec)

func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewCodec builds a Codec. signingKey authenticates delegation tokens;
// proofKey signs merchant-facing proof tokens.
func NewCodec(signingKey []byte, proofKey ed25519.PrivateKey, opts ...Option) (*Codec, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if len(proofKey) != ed25519.PrivateKeySize {
		return nil, errors.New("proof key is required")
	}
	c := &Codec{
		signingKey: signingKey,
		proofKey:   proofKey,
		issuer:     DefaultIssuer,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for a live consent. The token expires at the earlier of
// the consent expiry and now+TTL.
func (c *Codec) Issue(ctx context.Context, consent *consentModel.Consent) (string, time.Time, error) {
	now := requestcontext.Now(ctx)
	if !consent.IsLive(now) {
		return "", time.Time{}, dErrors.New(dErrors.CodeValidation, "consent is not live")
	}

	expiresAt := now.Add(c.ttl)
	if consent.ExpiresAt.Before(expiresAt) {
		expiresAt = consent.ExpiresAt
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ConsentID:   consent.ID,
		DeveloperID: consent.DeveloperID,
		Intent:      consent.Intent,
		Constraints: consent.Constraints.Normalized(),
		SingleUse:   consent.SingleUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   consent.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign delegation token")
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry, then, when p is non-nil, the purchase
// against the embedded constraints. No I/O.
func (c *Codec) Verify(ctx context.Context, tokenString string, p *Purchase) VerifyResult {
	now := requestcontext.Now(ctx)
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{Reason: domain.ReasonTokenExpired}
		}
		return VerifyResult{Reason: domain.ReasonInvalidToken}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ConsentID == "" || claims.Subject == "" {
		return VerifyResult{Reason: domain.ReasonInvalidToken}
	}

	if p != nil {
		if reason := CheckConstraints(claims.Constraints, *p); reason != domain.ReasonNone {
			return VerifyResult{Claims: claims, Reason: reason}
		}
	}
	return VerifyResult{Valid: true, Claims: claims}
}

// CheckConstraints evaluates a purchase against constraints in a fixed order:
// amount, currency, merchant, category. Empty restriction lists and absent
// purchase fields are not checked.
func CheckConstraints(cons consentModel.Constraints, p Purchase) domain.Reason {
	if p.Amount > cons.MaxAmount {
		return domain.ReasonAmountExceeded
	}
	if p.Currency != "" && !p.Currency.Equal(cons.Currency) {
		return domain.ReasonCurrencyMismatch
	}
	if len(cons.AllowedMerchants) > 0 && p.MerchantID != "" &&
		!pkgstrings.ContainsFold(cons.AllowedMerchants, p.MerchantID) {
		return domain.ReasonMerchantNotAllowed
	}
	if len(cons.AllowedCategories) > 0 && p.MerchantCategory != "" &&
		!pkgstrings.ContainsFold(cons.AllowedCategories, p.MerchantCategory) {
		return domain.ReasonCategoryNotAllowed
	}
	return domain.ReasonNone
}
