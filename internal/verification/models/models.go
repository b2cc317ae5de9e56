package models

import (
	"time"

	"agentauth/pkg/domain"
)

// Transaction is what the merchant is about to charge.
type Transaction struct {
	Amount   domain.Amount   `json:"amount"`
	Currency domain.Currency `json:"currency"`
}

// Request redeems an authorization code.
type Request struct {
	AuthorizationCode string      `json:"authorization_code"`
	Transaction       Transaction `json:"transaction"`
	MerchantID        string      `json:"merchant_id,omitempty"`
}

// ConsentProof is the chargeback evidence returned to the merchant.
type ConsentProof struct {
	ConsentID      string          `json:"consent_id"`
	AuthorizedAt   time.Time       `json:"authorized_at"`
	Intent         string          `json:"intent"`
	MaxAmount      domain.Amount   `json:"max_amount"`
	ActualAmount   domain.Amount   `json:"actual_amount"`
	Currency       domain.Currency `json:"currency"`
	SignatureValid bool            `json:"signature_valid"`
}

// Result is the redemption outcome. Error is a stable reason code and is set
// iff Valid is false.
type Result struct {
	Valid                 bool          `json:"valid"`
	AuthorizationID       string        `json:"authorization_id,omitempty"`
	ConsentProof          *ConsentProof `json:"consent_proof,omitempty"`
	VerificationTimestamp time.Time     `json:"verification_timestamp"`
	ProofToken            string        `json:"proof_token,omitempty"`
	Error                 domain.Reason `json:"error,omitempty"`
	Message               string        `json:"message,omitempty"`
}
