package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"agentauth/internal/audit"
	auditmemory "agentauth/internal/audit/store/memory"
	"agentauth/internal/authorization/codes"
	authzModels "agentauth/internal/authorization/models"
	"agentauth/internal/authorization/persist"
	authzstore "agentauth/internal/authorization/store"
	consentModels "agentauth/internal/consent/models"
	"agentauth/internal/events"
	jwttoken "agentauth/internal/jwt_token"
	"agentauth/internal/platform/cache"
	"agentauth/internal/verification/models"
	"agentauth/internal/verification/service/mocks"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

type RedeemSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	consents  *mocks.MockConsentReader
	table     *codes.Table
	store     *authzstore.InMemoryStore
	worker    *persist.Worker
	codec     *jwttoken.Codec
	ledger    *audit.Ledger
	publisher *events.Recorder
	service   *Service

	now     time.Time
	ctx     context.Context
	consent *consentModels.Consent
}

func TestRedeemSuite(t *testing.T) {
	suite.Run(t, new(RedeemSuite))
}

func (s *RedeemSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.consents = mocks.NewMockConsentReader(s.ctrl)
	s.publisher = events.NewRecorder()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithCallerID(requestcontext.WithTime(context.Background(), s.now), "merchant-key")

	var err error
	s.table, err = codes.New(cache.NewMemory(cache.WithClock(func() time.Time { return s.now })))
	s.Require().NoError(err)
	s.store = authzstore.NewInMemoryStore()
	s.worker, err = persist.New(s.store)
	s.Require().NoError(err)

	_, proofKey, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.codec, err = jwttoken.NewCodec([]byte("0123456789abcdef0123456789abcdef"), proofKey)
	s.Require().NoError(err)

	_, auditKey, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.ledger, err = audit.New(auditmemory.New(), auditKey)
	s.Require().NoError(err)

	s.service, err = New(s.table, s.store, s.worker, s.consents, s.codec, s.ledger, WithPublisher(s.publisher))
	s.Require().NoError(err)

	_, userKey, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.consent = &consentModels.Consent{
		ID:          "cns_1",
		UserID:      "usr_1",
		DeveloperID: "dev_1",
		Intent:      "developer tools under $100",
		Constraints: consentModels.Constraints{MaxAmount: 10000, Currency: "USD"},
		ExpiresAt:   s.now.Add(24 * time.Hour),
		IsActive:    true,
	}
	s.consent.Sign(userKey)
}

func (s *RedeemSuite) record(code string) *authzModels.Record {
	return &authzModels.Record{
		Code:        code,
		ConsentID:   "cns_1",
		DeveloperID: "dev_1",
		Decision:    authzModels.DecisionAllow,
		Amount:      999,
		Currency:    "USD",
		MerchantID:  "github",
		ExpiresAt:   s.now.Add(5 * time.Minute),
		CreatedAt:   s.now,
	}
}

func (s *RedeemSuite) putCode(code string) *authzModels.Record {
	rec := s.record(code)
	// The table entry outlives the code so expiry is decided by the record.
	s.Require().NoError(s.table.Put(s.ctx, rec, 10*time.Minute))
	return rec
}

func (s *RedeemSuite) request(code string, amount domain.Amount, currency string) models.Request {
	return models.Request{
		AuthorizationCode: code,
		Transaction:       models.Transaction{Amount: amount, Currency: domain.Currency(currency)},
		MerchantID:        "github",
	}
}

func (s *RedeemSuite) auditTypes(tenant string) []audit.EventType {
	entries, err := s.ledger.Query(context.Background(), tenant, audit.Filter{})
	s.Require().NoError(err)
	out := make([]audit.EventType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func (s *RedeemSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.store, s.worker, s.consents, s.codec, s.ledger)
	s.Error(err)
	_, err = New(s.table, s.store, s.worker, s.consents, nil, s.ledger)
	s.Error(err)
}

func (s *RedeemSuite) TestRejectsMalformedInput() {
	_, err := s.service.Redeem(s.ctx, s.request("", 999, "USD"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Redeem(s.ctx, s.request("authz_1", 999, "us"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RedeemSuite) TestSuccessfulRedemption() {
	s.putCode("authz_1")
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil)

	res, err := s.service.Redeem(s.ctx, s.request("authz_1", 999, "usd"))
	s.Require().NoError(err)

	s.True(res.Valid)
	s.Empty(res.Error)
	s.True(strings.HasPrefix(res.AuthorizationID, "auth_"))
	s.Equal(s.now, res.VerificationTimestamp)
	s.Require().NotNil(res.ConsentProof)
	s.Equal(models.ConsentProof{
		ConsentID:      "cns_1",
		AuthorizedAt:   s.now,
		Intent:         "developer tools under $100",
		MaxAmount:      10000,
		ActualAmount:   999,
		Currency:       "USD",
		SignatureValid: true,
	}, *res.ConsentProof)

	s.Run("proof token verifies", func() {
		claims, err := s.codec.VerifyProof(s.ctx, res.ProofToken)
		s.Require().NoError(err)
		s.Equal("authz_1", claims.AuthorizationCode)
		s.Equal(domain.Amount(999), claims.ActualAmount)
		s.True(claims.SignatureValid)
	})

	s.Run("durable mark_used is queued", func() {
		s.Require().NoError(s.store.SaveBatch(s.ctx, []*authzModels.Record{s.record("authz_1")}))
		s.Equal(1, s.worker.Pending())
		s.worker.Flush(s.ctx)
		rec, err := s.store.FindByCode(s.ctx, "authz_1")
		s.Require().NoError(err)
		s.True(rec.IsUsed)
		s.Equal("github", rec.VerifiedBy)
	})

	s.Equal([]audit.EventType{audit.AuthorizationUsed}, s.auditTypes("dev_1"))
	s.Len(s.publisher.OfType(events.AuthorizationUsed), 1)
}

func (s *RedeemSuite) TestSecondRedemptionFails() {
	s.putCode("authz_1")
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil).Times(1)

	first, err := s.service.Redeem(s.ctx, s.request("authz_1", 999, "USD"))
	s.Require().NoError(err)
	s.True(first.Valid)

	second, err := s.service.Redeem(s.ctx, s.request("authz_1", 999, "USD"))
	s.Require().NoError(err)
	s.False(second.Valid)
	s.Equal(domain.ReasonAuthorizationUsed, second.Error)
	s.Nil(second.ConsentProof)
	s.Empty(second.ProofToken)

	s.Equal(
		[]audit.EventType{audit.AuthorizationUsed, audit.AuthorizationVerifyFailed},
		s.auditTypes("dev_1"),
	)
}

func (s *RedeemSuite) TestConcurrentRedemptionHasOneWinner() {
	s.putCode("authz_1")
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil).Times(1)

	var valid, used atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.service.Redeem(s.ctx, s.request("authz_1", 999, "USD"))
			if err != nil {
				return
			}
			if res.Valid {
				valid.Add(1)
			} else if res.Error == domain.ReasonAuthorizationUsed {
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), valid.Load())
	s.Equal(int32(19), used.Load())
}

func (s *RedeemSuite) TestFailureReasons() {
	s.putCode("authz_1")

	cases := []struct {
		name   string
		req    models.Request
		reason domain.Reason
	}{
		{"unknown code", s.request("authz_missing", 999, "USD"), domain.ReasonAuthorizationNotFound},
		{"amount differs by a cent", s.request("authz_1", 1000, "USD"), domain.ReasonAmountMismatch},
		{"currency differs", s.request("authz_1", 999, "EUR"), domain.ReasonCurrencyMismatch},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			res, err := s.service.Redeem(s.ctx, tc.req)
			s.Require().NoError(err)
			s.False(res.Valid)
			s.Equal(tc.reason, res.Error)
			s.Equal(tc.reason.Message(), res.Message)
		})
	}
	s.Equal([]audit.EventType{audit.AuthorizationVerifyFailed}, s.auditTypes(audit.SystemTenant))
	s.Equal(0, s.worker.Pending())
}

func (s *RedeemSuite) TestExpiryBoundary() {
	rec := s.putCode("authz_1")
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil)

	late := requestcontext.WithTime(s.ctx, rec.ExpiresAt.Add(time.Second))
	res, err := s.service.Redeem(late, s.request("authz_1", 999, "USD"))
	s.Require().NoError(err)
	s.Equal(domain.ReasonAuthorizationExpired, res.Error)

	justInTime := requestcontext.WithTime(s.ctx, rec.ExpiresAt.Add(-time.Second))
	res, err = s.service.Redeem(justInTime, s.request("authz_1", 999, "USD"))
	s.Require().NoError(err)
	s.True(res.Valid)
}

func (s *RedeemSuite) TestDurableStoreFallback() {
	s.Require().NoError(s.store.SaveBatch(s.ctx, []*authzModels.Record{s.record("authz_2")}))
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil)

	res, err := s.service.Redeem(s.ctx, s.request("authz_2", 999, "USD"))
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(0, s.worker.Pending(), "store path updates directly")

	rec, err := s.store.FindByCode(s.ctx, "authz_2")
	s.Require().NoError(err)
	s.True(rec.IsUsed)

	again, err := s.service.Redeem(s.ctx, s.request("authz_2", 999, "USD"))
	s.Require().NoError(err)
	s.Equal(domain.ReasonAuthorizationUsed, again.Error)
}

func (s *RedeemSuite) TestConsentLookup() {
	s.Run("missing consent", func() {
		s.putCode("authz_3")
		s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(nil, sentinel.ErrNotFound)

		res, err := s.service.Redeem(s.ctx, s.request("authz_3", 999, "USD"))
		s.Require().NoError(err)
		s.Equal(domain.ReasonConsentNotFound, res.Error)
	})

	s.Run("unsigned consent still yields a proof", func() {
		s.putCode("authz_4")
		unsigned := *s.consent
		unsigned.Signature = ""
		s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(&unsigned, nil)

		res, err := s.service.Redeem(s.ctx, s.request("authz_4", 999, "USD"))
		s.Require().NoError(err)
		s.True(res.Valid)
		s.False(res.ConsentProof.SignatureValid)
	})
}
