package models

import (
	"time"

	rlmodels "agentauth/internal/ratelimit/models"
	"agentauth/pkg/domain"
)

// Decision is the terminal state of an authorization request.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionDeny   Decision = "DENY"
	DecisionStepUp Decision = "STEP_UP"
)

// Transaction is the purchase an agent asks to make.
type Transaction struct {
	Amount           domain.Amount   `json:"amount"`
	Currency         domain.Currency `json:"currency"`
	MerchantID       string          `json:"merchant_id,omitempty"`
	MerchantName     string          `json:"merchant_name,omitempty"`
	MerchantCategory string          `json:"merchant_category,omitempty"`
	Description      string          `json:"description,omitempty"`
	// Country is an ISO-3166 alpha-2 code used by the geographic velocity rule.
	Country string `json:"country,omitempty"`
}

// Request is an agent's authorization request.
type Request struct {
	DelegationToken string      `json:"delegation_token"`
	Action          string      `json:"action"`
	Transaction     Transaction `json:"transaction"`
}

// Result is the decision returned to the agent. Reason and Message are set
// for DENY and STEP_UP; AuthorizationCode and ExpiresAt only for ALLOW.
type Result struct {
	Decision          Decision      `json:"decision"`
	AuthorizationCode string        `json:"authorization_code,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	ConsentID         string        `json:"consent_id,omitempty"`
	Reason            domain.Reason `json:"reason,omitempty"`
	Message           string        `json:"message,omitempty"`
	StepUpURL         string        `json:"step_up_url,omitempty"`
	RiskScore         *float64      `json:"risk_score,omitempty"`

	// RateLimit is the limiter state for the caller, when the limiter ran.
	RateLimit *rlmodels.Result `json:"-"`
}

// Record is the durable trace of an issued authorization code. It is
// created on ALLOW, flips from unused to used exactly once, and is never
// deleted.
type Record struct {
	Code             string          `json:"authorization_code"`
	ConsentID        string          `json:"consent_id"`
	DeveloperID      string          `json:"developer_id"`
	Decision         Decision        `json:"decision"`
	Amount           domain.Amount   `json:"amount"`
	Currency         domain.Currency `json:"currency"`
	MerchantID       string          `json:"merchant_id,omitempty"`
	MerchantName     string          `json:"merchant_name,omitempty"`
	MerchantCategory string          `json:"merchant_category,omitempty"`
	Action           string          `json:"action,omitempty"`
	ExpiresAt        time.Time       `json:"expires_at"`
	IsUsed           bool            `json:"is_used"`
	UsedAt           *time.Time      `json:"used_at,omitempty"`
	VerifiedBy       string          `json:"verified_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Expired reports whether the code can no longer be redeemed at now. A code
// is still valid at exactly ExpiresAt.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// JobKind is a durable write queued by the request path.
type JobKind string

const (
	JobInsert   JobKind = "insert"
	JobMarkUsed JobKind = "mark_used"
)

// Job is one pending durable write.
type Job struct {
	Kind       JobKind
	TenantID   string
	Record     *Record // insert
	Code       string  // mark_used
	UsedAt     time.Time
	VerifiedBy string
	Attempts   int
}

// InsertJob queues a new record.
func InsertJob(r *Record) Job {
	return Job{Kind: JobInsert, TenantID: r.DeveloperID, Record: r, Code: r.Code}
}

// MarkUsedJob queues the used transition for code.
func MarkUsedJob(tenantID, code string, at time.Time, verifiedBy string) Job {
	return Job{Kind: JobMarkUsed, TenantID: tenantID, Code: code, UsedAt: at, VerifiedBy: verifiedBy}
}
