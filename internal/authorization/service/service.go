// Package service runs the authorization decision pipeline: delegation token,
// live consent, velocity, rate limit, then code issuance. Each stage either
// passes or ends the request with a terminal decision. An ALLOW is returned
// as soon as the code is in the shared code table; the durable write happens
// in the background.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agentauth/internal/audit"
	"agentauth/internal/authorization/codes"
	"agentauth/internal/authorization/metrics"
	"agentauth/internal/authorization/models"
	consentModels "agentauth/internal/consent/models"
	"agentauth/internal/events"
	jwttoken "agentauth/internal/jwt_token"
	"agentauth/internal/platform/logger"
	rlmodels "agentauth/internal/ratelimit/models"
	"agentauth/internal/velocity"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ConsentReader,ConsentClaimer,VelocityChecker,RateLimiter

const (
	DefaultCodeTTL       = 5 * time.Minute
	DefaultStepUpBaseURL = "https://agentauth.local/v1/step-up"
	anonymousCaller      = "anonymous"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string, p *jwttoken.Purchase) jwttoken.VerifyResult
}

// ConsentReader returns live consent state. Errors mean the consent could not
// be confirmed.
type ConsentReader interface {
	Get(ctx context.Context, id string) (*consentModels.Consent, error)
}

// ConsentClaimer records the one permitted use of a single-use consent in
// the durable consent store.
type ConsentClaimer interface {
	ClaimUse(ctx context.Context, id string, at time.Time) (bool, error)
	ReleaseUse(ctx context.Context, id string) error
}

type VelocityChecker interface {
	Check(ctx context.Context, tx velocity.Transaction) (velocity.Result, error)
	Record(ctx context.Context, tx velocity.Transaction) error
}

type RateLimiter interface {
	Check(ctx context.Context, callerID string, now time.Time) rlmodels.Result
}

type CodeTable interface {
	Put(ctx context.Context, rec *models.Record, ttl time.Duration) error
}

type Persister interface {
	Enqueue(ctx context.Context, job models.Job)
}

type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

type Service struct {
	tokens    TokenVerifier
	consents  ConsentReader
	claims    ConsentClaimer
	velocity  VelocityChecker
	limiter   RateLimiter
	codes     CodeTable
	persister Persister
	auditor   Auditor
	publisher events.Publisher
	codeTTL   time.Duration
	stepUpURL string
	tracer    trace.Tracer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

// WithVelocity enables velocity scoring. Without it the stage is skipped.
func WithVelocity(v VelocityChecker) Option {
	return func(s *Service) {
		s.velocity = v
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

func WithStepUpBaseURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.stepUpURL = u
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(
	tokens TokenVerifier,
	consents ConsentReader,
	claims ConsentClaimer,
	limiter RateLimiter,
	codeTable CodeTable,
	persister Persister,
	auditor Auditor,
	opts ...Option,
) (*Service, error) {
	switch {
	case tokens == nil:
		return nil, errors.New("token verifier is required")
	case consents == nil:
		return nil, errors.New("consent reader is required")
	case claims == nil:
		return nil, errors.New("consent claimer is required")
	case limiter == nil:
		return nil, errors.New("rate limiter is required")
	case codeTable == nil:
		return nil, errors.New("code table is required")
	case persister == nil:
		return nil, errors.New("persister is required")
	case auditor == nil:
		return nil, errors.New("audit ledger is required")
	}
	s := &Service{
		tokens:    tokens,
		consents:  consents,
		claims:    claims,
		limiter:   limiter,
		codes:     codeTable,
		persister: persister,
		auditor:   auditor,
		publisher: events.Nop{},
		codeTTL:   DefaultCodeTTL,
		stepUpURL: DefaultStepUpBaseURL,
		tracer:    otel.Tracer("agentauth/authorization"),
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// attempt carries what the pipeline learned about one request.
type attempt struct {
	req      models.Request
	now      time.Time
	callerID string
	claims   *jwttoken.Claims
	consent  *consentModels.Consent
	velocity *velocity.Result
	// flagged is the security event that accompanies the decision, if any.
	flagged audit.EventType
}

// Authorize decides one request. The error is only set for malformed input;
// every other failure is a DENY.
func (s *Service) Authorize(ctx context.Context, req models.Request) (*models.Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "authorization.authorize")
	defer span.End()

	a := &attempt{
		req:      req,
		now:      requestcontext.Now(ctx),
		callerID: requestcontext.CallerID(ctx),
	}
	if a.callerID == "" {
		a.callerID = anonymousCaller
	}

	result := s.decide(ctx, a)
	if a.claims != nil {
		result.ConsentID = a.claims.ConsentID
	}

	span.SetAttributes(
		attribute.String("authorization.decision", string(result.Decision)),
		attribute.String("authorization.reason", string(result.Reason)),
	)
	s.metrics.ObserveDecision(string(result.Decision), string(result.Reason), time.Since(start))
	s.report(ctx, a, result)
	return result, nil
}

func validate(req models.Request) error {
	if req.Transaction.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "transaction.amount must be positive")
	}
	if _, err := domain.ParseCurrency(string(req.Transaction.Currency)); err != nil {
		return dErrors.New(dErrors.CodeValidation, "transaction.currency must be a 3-letter code")
	}
	return nil
}

func (s *Service) decide(ctx context.Context, a *attempt) *models.Result {
	tx := a.req.Transaction

	verified := s.tokens.Verify(ctx, a.req.DelegationToken, &jwttoken.Purchase{
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		MerchantID:       tx.MerchantID,
		MerchantCategory: tx.MerchantCategory,
	})
	a.claims = verified.Claims
	if !verified.Valid {
		return deny(verified.Reason)
	}

	consent, err := s.consents.Get(ctx, a.claims.ConsentID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "consent_unconfirmed", "consent_id", a.claims.ConsentID, "error", err)
		}
		return deny(domain.ReasonConsentInvalid)
	}
	if liveness := consent.Liveness(a.now); liveness != consentModels.LivenessOK {
		s.logger.InfoContext(ctx, "consent_not_live", "consent_id", consent.ID, "liveness", liveness)
		return deny(domain.ReasonConsentInvalid)
	}
	a.consent = consent

	if s.velocity != nil {
		result, err := s.velocity.Check(ctx, s.velocityTx(a))
		if err != nil {
			return deny(domain.ReasonServiceUnavailable)
		}
		a.velocity = &result
		switch result.Recommendation {
		case velocity.RecommendDecline:
			a.flagged = audit.SecurityVelocityFailed
			out := deny(domain.ReasonVelocityBlocked)
			out.RiskScore = &result.RiskScore
			return out
		case velocity.RecommendVerify:
			return &models.Result{
				Decision:  models.DecisionStepUp,
				Reason:    domain.ReasonVelocityBlocked,
				Message:   "Additional verification required",
				StepUpURL: s.stepUpLink(consent.ID),
				RiskScore: &result.RiskScore,
			}
		}
	}

	limit := s.limiter.Check(ctx, a.callerID, a.now)
	if !limit.Allowed {
		a.flagged = audit.SecurityRateLimited
		out := deny(domain.ReasonRateLimitExceeded)
		out.RateLimit = &limit
		return out
	}

	out := s.issue(ctx, a)
	out.RateLimit = &limit
	return out
}

// issue claims a single-use consent, stores the code and queues its durable
// write.
func (s *Service) issue(ctx context.Context, a *attempt) *models.Result {
	consent := a.consent
	if a.claims.SingleUse {
		claimed, err := s.claims.ClaimUse(ctx, consent.ID, a.now)
		if err != nil {
			s.logger.ErrorContext(ctx, "single_use_claim_failed", "consent_id", consent.ID, "error", err)
			return deny(domain.ReasonServiceUnavailable)
		}
		if !claimed {
			return deny(domain.ReasonConsentInvalid)
		}
	}

	code, err := codes.NewCode()
	if err != nil {
		s.releaseConsent(ctx, a)
		s.logger.ErrorContext(ctx, "authorization_code_generation_failed", "error", err)
		return deny(domain.ReasonServiceUnavailable)
	}

	tx := a.req.Transaction
	expiresAt := a.now.Add(s.codeTTL).UTC()
	rec := &models.Record{
		Code:             code,
		ConsentID:        consent.ID,
		DeveloperID:      a.claims.DeveloperID,
		Decision:         models.DecisionAllow,
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		MerchantID:       tx.MerchantID,
		MerchantName:     tx.MerchantName,
		MerchantCategory: tx.MerchantCategory,
		Action:           a.req.Action,
		ExpiresAt:        expiresAt,
		CreatedAt:        a.now.UTC(),
	}
	if err := s.codes.Put(ctx, rec, s.codeTTL); err != nil {
		s.releaseConsent(ctx, a)
		s.logger.ErrorContext(ctx, "authorization_code_store_failed", "consent_id", consent.ID, "error", err)
		return deny(domain.ReasonServiceUnavailable)
	}
	s.persister.Enqueue(ctx, models.InsertJob(rec))

	if s.velocity != nil {
		if err := s.velocity.Record(ctx, s.velocityTx(a)); err != nil {
			s.logger.WarnContext(ctx, "velocity_record_failed", "user_id", a.claims.UserID(), "error", err)
		}
	}

	return &models.Result{
		Decision:          models.DecisionAllow,
		AuthorizationCode: code,
		ExpiresAt:         &expiresAt,
	}
}

func (s *Service) releaseConsent(ctx context.Context, a *attempt) {
	if !a.claims.SingleUse {
		return
	}
	if err := s.claims.ReleaseUse(ctx, a.consent.ID); err != nil {
		s.logger.WarnContext(ctx, "single_use_release_failed", "consent_id", a.consent.ID, "error", err)
	}
}

func (s *Service) velocityTx(a *attempt) velocity.Transaction {
	tx := a.req.Transaction
	merchant := tx.MerchantID
	if merchant == "" {
		merchant = tx.MerchantName
	}
	return velocity.Transaction{
		UserID:     a.claims.UserID(),
		Amount:     tx.Amount,
		MerchantID: strings.ToLower(merchant),
		Country:    strings.ToUpper(tx.Country),
		At:         a.now,
	}
}

func (s *Service) stepUpLink(consentID string) string {
	sep := "?"
	if strings.Contains(s.stepUpURL, "?") {
		sep = "&"
	}
	return s.stepUpURL + sep + "consent_id=" + url.QueryEscape(consentID)
}

func deny(reason domain.Reason) *models.Result {
	return &models.Result{
		Decision: models.DecisionDeny,
		Reason:   reason,
		Message:  reason.Message(),
	}
}
