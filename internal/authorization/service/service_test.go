package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"agentauth/internal/audit"
	auditmemory "agentauth/internal/audit/store/memory"
	"agentauth/internal/authorization/codes"
	"agentauth/internal/authorization/models"
	"agentauth/internal/authorization/persist"
	"agentauth/internal/authorization/service/mocks"
	"agentauth/internal/authorization/store"
	consentcache "agentauth/internal/consent/cache"
	consentModels "agentauth/internal/consent/models"
	consentstore "agentauth/internal/consent/store"
	"agentauth/internal/events"
	jwttoken "agentauth/internal/jwt_token"
	"agentauth/internal/platform/cache"
	rlmodels "agentauth/internal/ratelimit/models"
	"agentauth/internal/velocity"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

const caller = "key_agent_1"

type AuthorizeSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	consents  *mocks.MockConsentReader
	velocity  *mocks.MockVelocityChecker
	limiter   *mocks.MockRateLimiter
	claims    *consentstore.InMemoryStore
	codec     *jwttoken.Codec
	backend   *cache.Memory
	table     *codes.Table
	store     *store.InMemoryStore
	worker    *persist.Worker
	ledger    *audit.Ledger
	publisher *events.Recorder
	service   *Service

	now     time.Time
	ctx     context.Context
	consent *consentModels.Consent
	token   string
}

func TestAuthorizeSuite(t *testing.T) {
	suite.Run(t, new(AuthorizeSuite))
}

func (s *AuthorizeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.consents = mocks.NewMockConsentReader(s.ctrl)
	s.velocity = mocks.NewMockVelocityChecker(s.ctrl)
	s.limiter = mocks.NewMockRateLimiter(s.ctrl)
	s.publisher = events.NewRecorder()

	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithCallerID(s.ctx, caller)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")

	_, proofKey, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.codec, err = jwttoken.NewCodec([]byte("0123456789abcdef0123456789abcdef"), proofKey)
	s.Require().NoError(err)

	s.backend = cache.NewMemory(
		cache.WithMaxEntries(64),
		cache.WithClock(func() time.Time { return s.now }),
	)
	s.table, err = codes.New(s.backend)
	s.Require().NoError(err)
	s.store = store.NewInMemoryStore()
	s.worker, err = persist.New(s.store)
	s.Require().NoError(err)

	_, auditKey, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.ledger, err = audit.New(auditmemory.New(), auditKey)
	s.Require().NoError(err)

	s.claims = consentstore.NewInMemoryStore()
	s.service, err = New(s.codec, s.consents, s.claims, s.limiter, s.table, s.worker, s.ledger,
		WithVelocity(s.velocity),
		WithPublisher(s.publisher),
		WithStepUpBaseURL("https://agentauth.test/step-up"),
	)
	s.Require().NoError(err)

	s.consent = &consentModels.Consent{
		ID:          "cns_1",
		UserID:      "usr_1",
		DeveloperID: "dev_1",
		Intent:      "developer tools under $100",
		Constraints: consentModels.Constraints{MaxAmount: 10000, Currency: "USD"},
		ExpiresAt:   s.now.Add(24 * time.Hour),
		IsActive:    true,
		CreatedAt:   s.now.Add(-time.Hour),
	}
	s.Require().NoError(s.claims.Create(context.Background(), s.consent))
	s.token = s.issue(s.consent)
}

func (s *AuthorizeSuite) issue(c *consentModels.Consent) string {
	token, _, err := s.codec.Issue(s.ctx, c)
	s.Require().NoError(err)
	return token
}

func (s *AuthorizeSuite) request(amount domain.Amount, merchant string) models.Request {
	return models.Request{
		DelegationToken: s.token,
		Action:          "purchase",
		Transaction: models.Transaction{
			Amount:     amount,
			Currency:   "USD",
			MerchantID: merchant,
		},
	}
}

func (s *AuthorizeSuite) liveConsent() {
	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil)
}

func (s *AuthorizeSuite) velocityAllows() {
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(velocity.Result{Allowed: true, Recommendation: velocity.RecommendAllow}, nil)
}

func (s *AuthorizeSuite) withinRateLimit() {
	s.limiter.EXPECT().Check(gomock.Any(), caller, s.now).
		Return(rlmodels.Result{Allowed: true, Limit: 100, Remaining: 99, ResetAt: s.now.Add(time.Second)})
}

func (s *AuthorizeSuite) auditTypes(tenant string) []audit.EventType {
	s.ledger.Flush(context.Background())
	entries, err := s.ledger.Query(context.Background(), tenant, audit.Filter{})
	s.Require().NoError(err)
	out := make([]audit.EventType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Type)
	}
	return out
}

func (s *AuthorizeSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.consents, s.claims, s.limiter, s.table, s.worker, s.ledger)
	s.Error(err)
	_, err = New(s.codec, s.consents, nil, s.limiter, s.table, s.worker, s.ledger)
	s.Error(err)
	_, err = New(s.codec, s.consents, s.claims, nil, s.table, s.worker, s.ledger)
	s.Error(err)
	_, err = New(s.codec, s.consents, s.claims, s.limiter, s.table, s.worker, nil)
	s.Error(err)
}

func (s *AuthorizeSuite) TestRejectsMalformedTransaction() {
	_, err := s.service.Authorize(s.ctx, s.request(0, "github"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	req := s.request(100, "github")
	req.Transaction.Currency = "dollars"
	_, err = s.service.Authorize(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AuthorizeSuite) TestAllowIssuesCode() {
	s.liveConsent()
	s.velocityAllows()
	s.withinRateLimit()
	s.velocity.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx velocity.Transaction) error {
			s.Equal("usr_1", tx.UserID)
			s.Equal("github", tx.MerchantID)
			s.Equal(domain.Amount(999), tx.Amount)
			return nil
		})

	res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)

	s.Equal(models.DecisionAllow, res.Decision)
	s.True(strings.HasPrefix(res.AuthorizationCode, codes.Prefix))
	s.Equal("cns_1", res.ConsentID)
	s.Require().NotNil(res.ExpiresAt)
	s.Equal(s.now.Add(DefaultCodeTTL), *res.ExpiresAt)
	s.Require().NotNil(res.RateLimit)
	s.Equal(99, res.RateLimit.Remaining)

	s.Run("code is live in the shared table", func() {
		rec, err := s.table.Get(s.ctx, res.AuthorizationCode)
		s.Require().NoError(err)
		s.Equal(domain.Amount(999), rec.Amount)
		s.Equal("dev_1", rec.DeveloperID)
		s.False(rec.IsUsed)
	})

	s.Run("durable write is queued, not done", func() {
		s.Equal(1, s.worker.Pending())
		_, err := s.store.FindByCode(s.ctx, res.AuthorizationCode)
		s.ErrorIs(err, sentinel.ErrNotFound)

		s.worker.Flush(s.ctx)
		_, err = s.store.FindByCode(s.ctx, res.AuthorizationCode)
		s.NoError(err)
	})

	s.Run("decision is audited and published", func() {
		s.Equal([]audit.EventType{audit.AuthorizationApproved}, s.auditTypes("dev_1"))
		s.Len(s.publisher.OfType(events.AuthorizationApproved), 1)
	})
}

func (s *AuthorizeSuite) TestConstraintDenialsSkipEveryOtherStage() {
	cases := []struct {
		name   string
		mutate func(*models.Request)
		reason domain.Reason
	}{
		{"amount over max", func(r *models.Request) { r.Transaction.Amount = 15000 }, domain.ReasonAmountExceeded},
		{"currency mismatch", func(r *models.Request) { r.Transaction.Currency = "EUR" }, domain.ReasonCurrencyMismatch},
		{"garbage token", func(r *models.Request) { r.DelegationToken = "not-a-token" }, domain.ReasonInvalidToken},
		{"missing token", func(r *models.Request) { r.DelegationToken = "" }, domain.ReasonInvalidToken},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := s.request(999, "amazon")
			tc.mutate(&req)

			res, err := s.service.Authorize(s.ctx, req)
			s.Require().NoError(err)
			s.Equal(models.DecisionDeny, res.Decision)
			s.Equal(tc.reason, res.Reason)
			s.Equal(tc.reason.Message(), res.Message)
			s.Empty(res.AuthorizationCode)
		})
	}
	s.Equal(0, s.worker.Pending())
}

func (s *AuthorizeSuite) TestUndecodableTokenIsAuditedUnderSystemTenant() {
	req := s.request(999, "github")
	req.DelegationToken = "garbage"
	_, err := s.service.Authorize(s.ctx, req)
	s.Require().NoError(err)

	s.Equal([]audit.EventType{audit.AuthorizationDenied}, s.auditTypes(audit.SystemTenant))
}

func (s *AuthorizeSuite) TestExpiredToken() {
	later := requestcontext.WithTime(s.ctx, s.now.Add(2*time.Hour))
	res, err := s.service.Authorize(later, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(domain.ReasonTokenExpired, res.Reason)
}

func (s *AuthorizeSuite) TestConsentMustBeLive() {
	s.Run("revoked after the token was issued", func() {
		revoked := *s.consent
		revoked.Revoke(s.now)
		s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(&revoked, nil)

		res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
		s.Require().NoError(err)
		s.Equal(domain.ReasonConsentInvalid, res.Reason)
		s.Equal("cns_1", res.ConsentID)
	})

	s.Run("not found", func() {
		s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(nil, sentinel.ErrNotFound)
		res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
		s.Require().NoError(err)
		s.Equal(domain.ReasonConsentInvalid, res.Reason)
	})

	s.Run("status unknown fails closed", func() {
		s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(nil, consentcache.ErrUnavailable)
		res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
		s.Require().NoError(err)
		s.Equal(models.DecisionDeny, res.Decision)
		s.Equal(domain.ReasonConsentInvalid, res.Reason)
	})
}

func (s *AuthorizeSuite) TestVelocityDecline() {
	s.liveConsent()
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).Return(velocity.Result{
		RiskScore:      50,
		RuleTriggered:  string(velocity.RuleAmountSpike),
		Recommendation: velocity.RecommendDecline,
		Rules: []velocity.RuleResult{
			{Rule: velocity.RuleAmountSpike, Outcome: velocity.Block, Reason: "extreme_amount_spike"},
		},
	}, nil)

	res, err := s.service.Authorize(s.ctx, s.request(9000, "github"))
	s.Require().NoError(err)

	s.Equal(models.DecisionDeny, res.Decision)
	s.Equal(domain.ReasonVelocityBlocked, res.Reason)
	s.Require().NotNil(res.RiskScore)
	s.InDelta(50, *res.RiskScore, 0)
	s.Equal(
		[]audit.EventType{audit.AuthorizationDenied, audit.SecurityVelocityFailed},
		s.auditTypes("dev_1"),
	)
	s.Len(s.publisher.OfType(events.VelocityCheckFailed), 1)
	s.Len(s.publisher.OfType(events.AuthorizationDenied), 1)
}

func (s *AuthorizeSuite) TestVelocityStepUp() {
	s.liveConsent()
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(velocity.Result{RiskScore: 30, Recommendation: velocity.RecommendVerify}, nil)

	res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)

	s.Equal(models.DecisionStepUp, res.Decision)
	s.Equal("https://agentauth.test/step-up?consent_id=cns_1", res.StepUpURL)
	s.Empty(res.AuthorizationCode)
	s.Equal([]audit.EventType{audit.AuthorizationStepUp}, s.auditTypes("dev_1"))
	s.Len(s.publisher.OfType(events.AuthorizationStepUp), 1)
}

func (s *AuthorizeSuite) TestVelocityUnavailableFailsClosed() {
	s.liveConsent()
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(velocity.Result{}, velocity.ErrUnavailable)

	res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(domain.ReasonServiceUnavailable, res.Reason)
}

func (s *AuthorizeSuite) TestRateLimited() {
	s.liveConsent()
	s.velocityAllows()
	s.limiter.EXPECT().Check(gomock.Any(), caller, s.now).
		Return(rlmodels.Result{Allowed: false, Limit: 100, ResetAt: s.now.Add(time.Second), RetryAfter: 1})

	res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)

	s.Equal(domain.ReasonRateLimitExceeded, res.Reason)
	s.Require().NotNil(res.RateLimit)
	s.Equal(1, res.RateLimit.RetryAfter)
	s.Equal(
		[]audit.EventType{audit.AuthorizationDenied, audit.SecurityRateLimited},
		s.auditTypes("dev_1"),
	)
}

func (s *AuthorizeSuite) TestSingleUseConsentAllowsOnce() {
	s.consent.SingleUse = true
	s.token = s.issue(s.consent)

	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil).Times(2)
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(velocity.Result{Allowed: true, Recommendation: velocity.RecommendAllow}, nil).Times(2)
	s.limiter.EXPECT().Check(gomock.Any(), caller, s.now).
		Return(rlmodels.Result{Allowed: true, Limit: 100}).Times(2)
	s.velocity.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	first, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionAllow, first.Decision)

	second, err := s.service.Authorize(s.ctx, s.request(500, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionDeny, second.Decision)
	s.Equal(domain.ReasonConsentInvalid, second.Reason)
}

func (s *AuthorizeSuite) TestSingleUseClaimSurvivesCacheEviction() {
	s.consent.SingleUse = true
	s.token = s.issue(s.consent)

	s.consents.EXPECT().Get(gomock.Any(), "cns_1").Return(s.consent, nil).Times(2)
	s.velocity.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(velocity.Result{Allowed: true, Recommendation: velocity.RecommendAllow}, nil).Times(2)
	s.limiter.EXPECT().Check(gomock.Any(), caller, s.now).
		Return(rlmodels.Result{Allowed: true, Limit: 100}).Times(2)
	s.velocity.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	first, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Require().Equal(models.DecisionAllow, first.Decision)

	// Push every earlier entry out of the shared cache.
	for i := 0; i < 1000; i++ {
		key := "rl:caller:" + strconv.Itoa(i)
		s.Require().NoError(s.backend.Set(s.ctx, key, []byte("1"), time.Minute))
	}

	second, err := s.service.Authorize(s.ctx, s.request(500, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionDeny, second.Decision)
	s.Equal(domain.ReasonConsentInvalid, second.Reason)

	stored, err := s.claims.FindByID(s.ctx, "cns_1")
	s.Require().NoError(err)
	s.Require().NotNil(stored.UsedAt)
	s.Equal(s.now, *stored.UsedAt)
}

func (s *AuthorizeSuite) TestSingleUseClaimFailureIsUnavailable() {
	claims := mocks.NewMockConsentClaimer(s.ctrl)
	svc, err := New(s.codec, s.consents, claims, s.limiter, s.table, s.worker, s.ledger)
	s.Require().NoError(err)
	s.consent.SingleUse = true
	s.token = s.issue(s.consent)

	s.liveConsent()
	s.withinRateLimit()
	claims.EXPECT().ClaimUse(gomock.Any(), "cns_1", s.now).Return(false, errors.New("connection reset"))

	res, err := svc.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionDeny, res.Decision)
	s.Equal(domain.ReasonServiceUnavailable, res.Reason)
}

func (s *AuthorizeSuite) TestVelocityRecordFailureDoesNotChangeDecision() {
	s.liveConsent()
	s.velocityAllows()
	s.withinRateLimit()
	s.velocity.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("redis timeout"))

	res, err := s.service.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionAllow, res.Decision)
}

func (s *AuthorizeSuite) TestWithoutVelocity() {
	svc, err := New(s.codec, s.consents, s.claims, s.limiter, s.table, s.worker, s.ledger)
	s.Require().NoError(err)
	s.liveConsent()
	s.withinRateLimit()

	res, err := svc.Authorize(s.ctx, s.request(999, "github"))
	s.Require().NoError(err)
	s.Equal(models.DecisionAllow, res.Decision)
	s.Nil(res.RiskScore)
}
