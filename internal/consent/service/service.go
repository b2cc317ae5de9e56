// Package service owns consent operations on this side of the system.
// Consents are created upstream; here they are read, turned into delegation
// tokens for agents, and revoked.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agentauth/internal/audit"
	"agentauth/internal/consent/models"
	"agentauth/internal/events"
	"agentauth/internal/platform/logger"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Cache,TokenIssuer,Auditor

type Store interface {
	Revoke(ctx context.Context, id string, at time.Time) (*models.Consent, error)
}

// Cache is the read-through consent cache that must forget revoked consents.
type Cache interface {
	Get(ctx context.Context, id string) (*models.Consent, error)
	Invalidate(ctx context.Context, id string) error
}

// TokenIssuer signs delegation tokens for live consents.
type TokenIssuer interface {
	Issue(ctx context.Context, consent *models.Consent) (string, time.Time, error)
}

type Auditor interface {
	Append(ctx context.Context, event audit.Event) (*audit.Entry, error)
}

type Service struct {
	store     Store
	cache     Cache
	tokens    TokenIssuer
	auditor   Auditor
	publisher events.Publisher
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func New(store Store, cache Cache, tokens TokenIssuer, auditor Auditor, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("consent store is required")
	}
	if cache == nil {
		return nil, errors.New("consent cache is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if auditor == nil {
		return nil, errors.New("audit ledger is required")
	}
	s := &Service{
		store:     store,
		cache:     cache,
		tokens:    tokens,
		auditor:   auditor,
		publisher: events.Nop{},
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Revoke marks the consent revoked and drops it from the cache. Revoking an
// already revoked consent is not an error; the original revoked_at is kept.
func (s *Service) Revoke(ctx context.Context, consentID string) (*models.Consent, error) {
	if consentID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_id is required")
	}
	now := requestcontext.Now(ctx)

	consent, err := s.store.Revoke(ctx, consentID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}

	// The store is already updated; a stale cache entry would keep the
	// consent live until its TTL, so failure here is surfaced.
	if err := s.cache.Invalidate(ctx, consentID); err != nil {
		s.logger.ErrorContext(ctx, "consent_cache_invalidate_failed", "consent_id", consentID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent revoked but cache invalidation failed")
	}

	if _, err := s.auditor.Append(ctx, audit.Event{
		Type:     audit.ConsentRevoked,
		TenantID: consent.DeveloperID,
		Actor: audit.Actor{
			Type: "developer",
			ID:   requestcontext.CallerID(ctx),
			IP:   requestcontext.ClientIP(ctx),
		},
		Resource: audit.Resource{Type: "consent", ID: consent.ID},
		Action:   "revoke_consent",
		Outcome:  audit.OutcomeSuccess,
		Details: map[string]any{
			"user_id":    consent.UserID,
			"revoked_at": consent.RevokedAt,
		},
	}); err != nil {
		s.logger.ErrorContext(ctx, "consent_revoke_audit_failed", "consent_id", consentID, "error", err)
	}

	s.publisher.Publish(ctx, events.New(events.ConsentRevoked, consent.DeveloperID, consent.ID, now, map[string]any{
		"consent_id": consent.ID,
		"user_id":    consent.UserID,
		"revoked_at": consent.RevokedAt,
	}))
	s.logger.InfoContext(ctx, "consent_revoked",
		"consent_id", consent.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return consent, nil
}

// Get returns the consent as the authorization path sees it.
func (s *Service) Get(ctx context.Context, consentID string) (*models.Consent, error) {
	if consentID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_id is required")
	}
	consent, err := s.cache.Get(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent status unknown")
	}
	return consent, nil
}

const consentUsed = "consent_used"

// IssueToken signs a delegation token for a live consent. Revoked, inactive,
// expired and already used single-use consents are refused with conflict.
func (s *Service) IssueToken(ctx context.Context, consentID string) (*models.TokenGrant, error) {
	consent, err := s.Get(ctx, consentID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	state := consent.Liveness(now)
	if state == models.LivenessOK && consent.SingleUse && consent.UsedAt != nil {
		state = consentUsed
	}
	if state != models.LivenessOK {
		s.logger.InfoContext(ctx, "consent_token_refused", "consent_id", consent.ID, "liveness", state)
		return nil, dErrors.New(dErrors.CodeConflict, state)
	}

	token, expiresAt, err := s.tokens.Issue(ctx, consent)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeValidation {
			return nil, dErrors.New(dErrors.CodeConflict, models.LivenessExpired)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue delegation token")
	}

	if _, err := s.auditor.Append(ctx, audit.Event{
		Type:     audit.ConsentTokenIssued,
		TenantID: consent.DeveloperID,
		Actor: audit.Actor{
			Type: "developer",
			ID:   requestcontext.CallerID(ctx),
			IP:   requestcontext.ClientIP(ctx),
		},
		Resource: audit.Resource{Type: "consent", ID: consent.ID},
		Action:   "issue_delegation_token",
		Outcome:  audit.OutcomeSuccess,
		Details: map[string]any{
			"user_id":    consent.UserID,
			"expires_at": expiresAt,
		},
	}); err != nil {
		s.logger.ErrorContext(ctx, "consent_token_audit_failed", "consent_id", consent.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "consent_token_issued",
		"consent_id", consent.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.TokenGrant{ConsentID: consent.ID, DelegationToken: token, ExpiresAt: expiresAt}, nil
}
