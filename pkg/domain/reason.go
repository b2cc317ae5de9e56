package domain

// Reason is a stable, client-visible code explaining a denial or a failed
// verification. Reasons are values, never errors: callers switch on them.
type Reason string

// Token and constraint reasons.
const (
	ReasonNone                Reason = ""
	ReasonTokenExpired        Reason = "token_expired"
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonAmountExceeded      Reason = "amount_exceeded"
	ReasonCurrencyMismatch    Reason = "currency_mismatch"
	ReasonMerchantNotAllowed  Reason = "merchant_not_allowed"
	ReasonCategoryNotAllowed  Reason = "category_not_allowed"
	ReasonConsentInvalid      Reason = "consent_invalid"
	ReasonVelocityBlocked     Reason = "velocity_blocked"
	ReasonRateLimitExceeded   Reason = "rate_limit_exceeded"
	ReasonServiceUnavailable  Reason = "service_unavailable"
	ReasonIdempotencyConflict Reason = "idempotency_conflict"
)

// Verification reasons.
const (
	ReasonAuthorizationNotFound Reason = "authorization_not_found"
	ReasonAuthorizationUsed     Reason = "authorization_already_used"
	ReasonAuthorizationExpired  Reason = "authorization_expired"
	ReasonAmountMismatch        Reason = "amount_mismatch"
	ReasonConsentNotFound       Reason = "consent_not_found"
)

var reasonMessages = map[Reason]string{
	ReasonTokenExpired:          "Delegation token has expired",
	ReasonInvalidToken:          "Delegation token is malformed or its signature is invalid",
	ReasonAmountExceeded:        "Transaction amount exceeds the consented maximum",
	ReasonCurrencyMismatch:      "Transaction currency does not match the consent",
	ReasonMerchantNotAllowed:    "Merchant is not in the consent's allowed merchants",
	ReasonCategoryNotAllowed:    "Merchant category is not in the consent's allowed categories",
	ReasonConsentInvalid:        "Consent is revoked, expired, inactive or could not be confirmed",
	ReasonVelocityBlocked:       "Transaction blocked by velocity checks",
	ReasonRateLimitExceeded:     "Too many authorization requests",
	ReasonServiceUnavailable:    "Authorization temporarily unavailable",
	ReasonIdempotencyConflict:   "A request with this idempotency key is already in progress",
	ReasonAuthorizationNotFound: "Authorization code not found",
	ReasonAuthorizationUsed:     "Authorization code has already been used",
	ReasonAuthorizationExpired:  "Authorization code has expired",
	ReasonAmountMismatch:        "Transaction amount does not match the authorization",
	ReasonConsentNotFound:       "Originating consent not found",
}

// Message returns the human-readable message for r.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

func (r Reason) String() string { return string(r) }
