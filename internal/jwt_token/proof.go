package jwttoken

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/requestcontext"
)

const (
	proofTokenType = "consent_proof"
	// ProofTTL keeps proofs usable through typical chargeback windows.
	ProofTTL = 180 * 24 * time.Hour
)

// ProofClaims is the merchant-facing evidence that a transaction was
// authorized under a specific consent.
type ProofClaims struct {
	Type                string          `json:"type"`
	ConsentID           string          `json:"consent_id"`
	AuthorizationCode   string          `json:"authorization_code"`
	UserIntent          string          `json:"user_intent"`
	MaxAuthorizedAmount domain.Amount   `json:"max_authorized_amount"`
	ActualAmount        domain.Amount   `json:"actual_amount"`
	Currency            domain.Currency `json:"currency"`
	MerchantID          string          `json:"merchant_id,omitempty"`
	SignatureValid      bool            `json:"signature_valid"`
	VerifiedAt          time.Time       `json:"verified_at"`
	jwt.RegisteredClaims
}

// IssueProof signs proof claims with the proof key.
func (c *Codec) IssueProof(ctx context.Context, proof ProofClaims) (string, error) {
	now := requestcontext.Now(ctx)
	proof.Type = proofTokenType
	proof.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   proof.ConsentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ProofTTL)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, proof).SignedString(c.proofKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign proof token")
	}
	return signed, nil
}

// VerifyProof validates a proof token against the proof public key.
func (c *Codec) VerifyProof(ctx context.Context, tokenString string) (*ProofClaims, error) {
	now := requestcontext.Now(ctx)
	pub := c.ProofPublicKey()
	parsed, err := jwt.ParseWithClaims(tokenString, &ProofClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return pub, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "proof token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid proof token")
	}
	claims, ok := parsed.Claims.(*ProofClaims)
	if !ok || claims.Type != proofTokenType {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid proof token")
	}
	return claims, nil
}

// ProofPublicKey is published so merchants can verify proofs offline.
func (c *Codec) ProofPublicKey() ed25519.PublicKey {
	return c.proofKey.Public().(ed25519.PublicKey)
}
