// Package httptransport is the thin HTTP layer over the authorization,
// verification, consent and audit services.
package httptransport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"time"

	"agentauth/internal/audit"
	authzModels "agentauth/internal/authorization/models"
	consentModels "agentauth/internal/consent/models"
	"agentauth/internal/platform/logger"
	verifyModels "agentauth/internal/verification/models"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Authorizer,Redeemer,ConsentService,AuditLedger,ProofKeys

type Authorizer interface {
	Authorize(ctx context.Context, req authzModels.Request) (*authzModels.Result, error)
}

type Redeemer interface {
	Redeem(ctx context.Context, req verifyModels.Request) (*verifyModels.Result, error)
}

type ConsentService interface {
	Get(ctx context.Context, consentID string) (*consentModels.Consent, error)
	IssueToken(ctx context.Context, consentID string) (*consentModels.TokenGrant, error)
	Revoke(ctx context.Context, consentID string) (*consentModels.Consent, error)
}

type AuditLedger interface {
	Export(ctx context.Context, tenantID string, regulation audit.Regulation, start, end time.Time, actor audit.Actor) (*audit.Export, error)
	VerifyIntegrity(ctx context.Context, tenantID string) (audit.IntegrityReport, error)
	PublicKey() ed25519.PublicKey
}

type ProofKeys interface {
	ProofPublicKey() ed25519.PublicKey
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves every public endpoint. It delegates to domain services
// without embedding business logic.
type Handler struct {
	authorizer Authorizer
	redeemer   Redeemer
	consents   ConsentService
	ledger     AuditLedger
	proofs     ProofKeys
	checks     map[string]HealthCheck
	logger     *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func New(
	authorizer Authorizer,
	redeemer Redeemer,
	consents ConsentService,
	ledger AuditLedger,
	proofs ProofKeys,
	opts ...Option,
) (*Handler, error) {
	switch {
	case authorizer == nil:
		return nil, errors.New("authorization service is required")
	case redeemer == nil:
		return nil, errors.New("verification service is required")
	case consents == nil:
		return nil, errors.New("consent service is required")
	case ledger == nil:
		return nil, errors.New("audit ledger is required")
	case proofs == nil:
		return nil, errors.New("proof key source is required")
	}
	h := &Handler{
		authorizer: authorizer,
		redeemer:   redeemer,
		consents:   consents,
		ledger:     ledger,
		proofs:     proofs,
		checks:     make(map[string]HealthCheck),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}
