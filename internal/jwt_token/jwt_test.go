package jwttoken

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consentModel "agentauth/internal/consent/models"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/requestcontext"
)

var (
	testSigningKey = []byte("0123456789abcdef0123456789abcdef")
	issuedAt       = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	_, proofKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	codec, err := NewCodec(testSigningKey, proofKey)
	require.NoError(t, err)
	return codec
}

func testConsent() *consentModel.Consent {
	return &consentModel.Consent{
		ID:          "cns_1",
		UserID:      "usr_1",
		DeveloperID: "dev_1",
		Intent:      "buy developer tools",
		Constraints: consentModel.Constraints{
			MaxAmount:         10000,
			Currency:          "USD",
			AllowedMerchants:  []string{"github", "jetbrains"},
			AllowedCategories: []string{"software"},
		},
		ExpiresAt: issuedAt.Add(24 * time.Hour),
		IsActive:  true,
		SingleUse: true,
	}
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestNewCodec(t *testing.T) {
	_, proofKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = NewCodec([]byte("short"), proofKey)
	assert.Error(t, err)
	_, err = NewCodec(testSigningKey, nil)
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	codec := newCodec(t)
	token, expiresAt, err := codec.Issue(at(issuedAt), testConsent())
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(DefaultTTL), expiresAt)

	res := codec.Verify(at(issuedAt.Add(time.Minute)), token, nil)
	require.True(t, res.Valid)
	assert.Equal(t, "cns_1", res.Claims.ConsentID)
	assert.Equal(t, "usr_1", res.Claims.UserID())
	assert.Equal(t, "dev_1", res.Claims.DeveloperID)
	assert.True(t, res.Claims.SingleUse)
	assert.Equal(t, domain.Amount(10000), res.Claims.Constraints.MaxAmount)
}

func TestIssueCapsExpiryAtConsentExpiry(t *testing.T) {
	codec := newCodec(t)
	c := testConsent()
	c.ExpiresAt = issuedAt.Add(10 * time.Minute)

	_, expiresAt, err := codec.Issue(at(issuedAt), c)
	require.NoError(t, err)
	assert.Equal(t, c.ExpiresAt, expiresAt)
}

func TestIssueRejectsRevokedConsent(t *testing.T) {
	codec := newCodec(t)
	c := testConsent()
	c.Revoke(issuedAt)

	_, _, err := codec.Issue(at(issuedAt), c)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeValidation, "consent is not live"))
}

func TestVerifyTokenFailures(t *testing.T) {
	codec := newCodec(t)
	token, _, err := codec.Issue(at(issuedAt), testConsent())
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		res := codec.Verify(at(issuedAt.Add(2*time.Hour)), token, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, domain.ReasonTokenExpired, res.Reason)
	})

	t.Run("malformed", func(t *testing.T) {
		res := codec.Verify(at(issuedAt), "not-a-token", nil)
		assert.Equal(t, domain.ReasonInvalidToken, res.Reason)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
		res := codec.Verify(at(issuedAt), tampered, nil)
		assert.Equal(t, domain.ReasonInvalidToken, res.Reason)
	})

	t.Run("other key", func(t *testing.T) {
		_, proofKey, _ := ed25519.GenerateKey(rand.Reader)
		other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), proofKey)
		require.NoError(t, err)
		res := other.Verify(at(issuedAt), token, nil)
		assert.Equal(t, domain.ReasonInvalidToken, res.Reason)
	})

	t.Run("alg none rejected", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ConsentID: "cns_1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		res := codec.Verify(at(issuedAt), unsigned, nil)
		assert.Equal(t, domain.ReasonInvalidToken, res.Reason)
	})
}

func TestVerifyConstraints(t *testing.T) {
	codec := newCodec(t)
	token, _, err := codec.Issue(at(issuedAt), testConsent())
	require.NoError(t, err)
	ctx := at(issuedAt)

	tests := []struct {
		name   string
		p      Purchase
		reason domain.Reason
	}{
		{"within limits", Purchase{Amount: 999, Currency: "USD", MerchantID: "github", MerchantCategory: "software"}, domain.ReasonNone},
		{"exactly max", Purchase{Amount: 10000, Currency: "usd"}, domain.ReasonNone},
		{"amount exceeded", Purchase{Amount: 15000, Currency: "USD", MerchantID: "amazon"}, domain.ReasonAmountExceeded},
		{"currency mismatch", Purchase{Amount: 100, Currency: "EUR"}, domain.ReasonCurrencyMismatch},
		{"currency omitted", Purchase{Amount: 100}, domain.ReasonNone},
		{"merchant not allowed", Purchase{Amount: 100, Currency: "USD", MerchantID: "amazon"}, domain.ReasonMerchantNotAllowed},
		{"merchant case-insensitive", Purchase{Amount: 100, Currency: "USD", MerchantID: "GitHub"}, domain.ReasonNone},
		{"category not allowed", Purchase{Amount: 100, Currency: "USD", MerchantID: "github", MerchantCategory: "travel"}, domain.ReasonCategoryNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := codec.Verify(ctx, token, &tt.p)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.reason == domain.ReasonNone, res.Valid)
			require.NotNil(t, res.Claims, "claims are returned for constraint denials")
		})
	}
}

func TestProofToken(t *testing.T) {
	codec := newCodec(t)
	ctx := at(issuedAt)

	signed, err := codec.IssueProof(ctx, ProofClaims{
		ConsentID:           "cns_1",
		AuthorizationCode:   "authz_abc",
		UserIntent:          "buy developer tools",
		MaxAuthorizedAmount: 10000,
		ActualAmount:        999,
		Currency:            "USD",
		SignatureValid:      true,
		VerifiedAt:          issuedAt,
	})
	require.NoError(t, err)

	claims, err := codec.VerifyProof(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "consent_proof", claims.Type)
	assert.Equal(t, "authz_abc", claims.AuthorizationCode)
	assert.Equal(t, domain.Amount(999), claims.ActualAmount)

	// a delegation token is not a proof
	delegation, _, err := codec.Issue(ctx, testConsent())
	require.NoError(t, err)
	_, err = codec.VerifyProof(ctx, delegation)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid proof token"))
}
