// Package service redeems authorization codes. A code is redeemable once:
// the claim on the shared code table (or the conditional update on the
// durable store for codes that have left the table) picks exactly one
// winner among concurrent attempts.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agentauth/internal/audit"
	authzModels "agentauth/internal/authorization/models"
	consentModels "agentauth/internal/consent/models"
	"agentauth/internal/events"
	jwttoken "agentauth/internal/jwt_token"
	"agentauth/internal/platform/logger"
	"agentauth/internal/verification/metrics"
	"agentauth/internal/verification/models"
	"agentauth/pkg/domain"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ConsentReader

const authorizationIDPrefix = "auth_"

// CodeTable is the live code table shared with authorization.
type CodeTable interface {
	Get(ctx context.Context, code string) (*authzModels.Record, error)
	Claim(ctx context.Context, code string, expiresAt, now time.Time) (bool, error)
}

// Store is the durable authorization store, consulted when the table misses.
type Store interface {
	FindByCode(ctx context.Context, code string) (*authzModels.Record, error)
	MarkUsed(ctx context.Context, code string, at time.Time, verifiedBy string) error
}

type Persister interface {
	Enqueue(ctx context.Context, job authzModels.Job)
}

type ConsentReader interface {
	Get(ctx context.Context, id string) (*consentModels.Consent, error)
}

type ProofIssuer interface {
	IssueProof(ctx context.Context, proof jwttoken.ProofClaims) (string, error)
}

type Auditor interface {
	Append(ctx context.Context, event audit.Event) (*audit.Entry, error)
}

type Service struct {
	codes     CodeTable
	store     Store
	persister Persister
	consents  ConsentReader
	proofs    ProofIssuer
	auditor   Auditor
	publisher events.Publisher
	tracer    trace.Tracer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

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
	codeTable CodeTable,
	store Store,
	persister Persister,
	consents ConsentReader,
	proofs ProofIssuer,
	auditor Auditor,
	opts ...Option,
) (*Service, error) {
	switch {
	case codeTable == nil:
		return nil, errors.New("code table is required")
	case store == nil:
		return nil, errors.New("authorization store is required")
	case persister == nil:
		return nil, errors.New("persister is required")
	case consents == nil:
		return nil, errors.New("consent reader is required")
	case proofs == nil:
		return nil, errors.New("proof issuer is required")
	case auditor == nil:
		return nil, errors.New("audit ledger is required")
	}
	s := &Service{
		codes:     codeTable,
		store:     store,
		persister: persister,
		consents:  consents,
		proofs:    proofs,
		auditor:   auditor,
		publisher: events.Nop{},
		tracer:    otel.Tracer("agentauth/verification"),
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// redemption carries what was learned about one attempt.
type redemption struct {
	req       models.Request
	now       time.Time
	record    *authzModels.Record
	fromStore bool
}

// Redeem verifies a code against the merchant's transaction and consumes it.
// The error is only set for malformed input; failed redemptions are results.
func (s *Service) Redeem(ctx context.Context, req models.Request) (*models.Result, error) {
	if req.AuthorizationCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "authorization_code is required")
	}
	if _, err := domain.ParseCurrency(string(req.Transaction.Currency)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction.currency must be a 3-letter code")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "verification.redeem")
	defer span.End()

	r := &redemption{req: req, now: requestcontext.Now(ctx)}
	result := s.redeem(ctx, r)
	result.VerificationTimestamp = r.now.UTC()

	outcome := "valid"
	if !result.Valid {
		outcome = string(result.Error)
		result.Message = result.Error.Message()
	}
	span.SetAttributes(attribute.String("verification.result", outcome))
	s.metrics.ObserveRedemption(outcome, time.Since(start))
	s.report(ctx, r, result)
	return result, nil
}

func (s *Service) redeem(ctx context.Context, r *redemption) *models.Result {
	rec, fromStore, reason := s.lookup(ctx, r.req.AuthorizationCode)
	if reason != domain.ReasonNone {
		return fail(reason)
	}
	r.record, r.fromStore = rec, fromStore

	switch {
	case rec.IsUsed:
		return fail(domain.ReasonAuthorizationUsed)
	case rec.Expired(r.now):
		return fail(domain.ReasonAuthorizationExpired)
	case rec.Amount != r.req.Transaction.Amount:
		return fail(domain.ReasonAmountMismatch)
	case !rec.Currency.Equal(r.req.Transaction.Currency):
		return fail(domain.ReasonCurrencyMismatch)
	}

	if reason := s.claim(ctx, r); reason != domain.ReasonNone {
		return fail(reason)
	}

	consent, err := s.consents.Get(ctx, rec.ConsentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fail(domain.ReasonConsentNotFound)
		}
		s.logger.ErrorContext(ctx, "verification_consent_unavailable", "consent_id", rec.ConsentID, "error", err)
		return fail(domain.ReasonServiceUnavailable)
	}

	proof := &models.ConsentProof{
		ConsentID:      consent.ID,
		AuthorizedAt:   rec.CreatedAt.UTC(),
		Intent:         consent.Intent,
		MaxAmount:      consent.Constraints.MaxAmount,
		ActualAmount:   r.req.Transaction.Amount,
		Currency:       rec.Currency,
		SignatureValid: consent.VerifySignature(),
	}
	token, err := s.proofs.IssueProof(ctx, jwttoken.ProofClaims{
		ConsentID:           proof.ConsentID,
		AuthorizationCode:   rec.Code,
		UserIntent:          proof.Intent,
		MaxAuthorizedAmount: proof.MaxAmount,
		ActualAmount:        proof.ActualAmount,
		Currency:            proof.Currency,
		MerchantID:          r.req.MerchantID,
		SignatureValid:      proof.SignatureValid,
		VerifiedAt:          r.now.UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "proof_issue_failed", "consent_id", consent.ID, "error", err)
		return fail(domain.ReasonServiceUnavailable)
	}

	return &models.Result{
		Valid:           true,
		AuthorizationID: authorizationIDPrefix + uuid.NewString(),
		ConsentProof:    proof,
		ProofToken:      token,
	}
}

// lookup reads the code table and falls back to the durable store.
func (s *Service) lookup(ctx context.Context, code string) (*authzModels.Record, bool, domain.Reason) {
	rec, err := s.codes.Get(ctx, code)
	if err == nil {
		return rec, false, domain.ReasonNone
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "code_table_read_failed", "error", err)
	}

	s.metrics.IncrementFallback()
	rec, storeErr := s.store.FindByCode(ctx, code)
	switch {
	case storeErr == nil:
		return rec, true, domain.ReasonNone
	case errors.Is(storeErr, sentinel.ErrNotFound) && errors.Is(err, sentinel.ErrNotFound):
		return nil, false, domain.ReasonAuthorizationNotFound
	default:
		s.logger.ErrorContext(ctx, "authorization_lookup_failed", "table_error", err, "store_error", storeErr)
		return nil, false, domain.ReasonServiceUnavailable
	}
}

// claim consumes the code. Losing a race reads as already used.
func (s *Service) claim(ctx context.Context, r *redemption) domain.Reason {
	rec := r.record
	verifiedBy := r.req.MerchantID
	if verifiedBy == "" {
		verifiedBy = requestcontext.CallerID(ctx)
	}

	if r.fromStore {
		err := s.store.MarkUsed(ctx, rec.Code, r.now, verifiedBy)
		switch {
		case err == nil:
			return domain.ReasonNone
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return domain.ReasonAuthorizationUsed
		default:
			s.logger.ErrorContext(ctx, "authorization_mark_used_failed", "error", err)
			return domain.ReasonServiceUnavailable
		}
	}

	won, err := s.codes.Claim(ctx, rec.Code, rec.ExpiresAt, r.now)
	if err != nil {
		s.logger.ErrorContext(ctx, "authorization_claim_failed", "error", err)
		return domain.ReasonServiceUnavailable
	}
	if !won {
		return domain.ReasonAuthorizationUsed
	}
	s.persister.Enqueue(ctx, authzModels.MarkUsedJob(rec.DeveloperID, rec.Code, r.now, verifiedBy))
	return domain.ReasonNone
}

func (s *Service) report(ctx context.Context, r *redemption, result *models.Result) {
	tenantID, consentID := "", ""
	if r.record != nil {
		tenantID, consentID = r.record.DeveloperID, r.record.ConsentID
	}
	details := map[string]any{
		"amount":   r.req.Transaction.Amount.String(),
		"currency": string(r.req.Transaction.Currency),
	}
	if consentID != "" {
		details["consent_id"] = consentID
	}
	if r.req.MerchantID != "" {
		details["merchant_id"] = r.req.MerchantID
	}
	if r.fromStore {
		details["source"] = "durable_store"
	}

	event := audit.Event{
		TenantID: tenantID,
		Actor:    audit.Actor{Type: "merchant", ID: requestcontext.CallerID(ctx), IP: requestcontext.ClientIP(ctx)},
		Resource: audit.Resource{Type: "authorization", ID: r.req.AuthorizationCode},
		Action:   "verify",
	}
	if result.Valid {
		event.Type, event.Outcome = audit.AuthorizationUsed, audit.OutcomeSuccess
		details["authorization_id"] = result.AuthorizationID
		details["signature_valid"] = result.ConsentProof.SignatureValid
	} else {
		event.Type, event.Outcome = audit.AuthorizationVerifyFailed, audit.OutcomeDenied
		details["reason"] = string(result.Error)
	}
	event.Details = details

	if _, err := s.auditor.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "verification_audit_failed", "event_type", event.Type, "error", err)
	}

	if result.Valid {
		s.publisher.Publish(ctx, events.New(events.AuthorizationUsed, tenantID, consentID, r.now, map[string]any{
			"authorization_id": result.AuthorizationID,
			"consent_id":       consentID,
			"amount":           r.req.Transaction.Amount,
			"currency":         r.req.Transaction.Currency,
			"merchant_id":      r.req.MerchantID,
		}))
		s.logger.InfoContext(ctx, "authorization_redeemed", "consent_id", consentID, "authorization_id", result.AuthorizationID)
		return
	}
	s.logger.InfoContext(ctx, "authorization_redeem_failed", "reason", result.Error, "consent_id", consentID)
}

func fail(reason domain.Reason) *models.Result {
	return &models.Result{Error: reason}
}
