package service

import (
	"context"

	"agentauth/internal/audit"
	"agentauth/internal/authorization/models"
	"agentauth/internal/events"
	"agentauth/pkg/requestcontext"
)

// report records the decision in the audit ledger, publishes it and logs it.
// None of it can change the decision.
func (s *Service) report(ctx context.Context, a *attempt, result *models.Result) {
	tenantID := ""
	resource := audit.Resource{Type: "authorization_request", ID: requestcontext.RequestID(ctx)}
	if a.claims != nil {
		tenantID = a.claims.DeveloperID
		resource = audit.Resource{Type: "consent", ID: a.claims.ConsentID}
	}
	actor := audit.Actor{Type: "agent", ID: a.callerID, IP: requestcontext.ClientIP(ctx)}
	details := s.details(ctx, a, result)

	eventType, outcome, published := audit.AuthorizationDenied, audit.OutcomeDenied, events.AuthorizationDenied
	switch result.Decision {
	case models.DecisionAllow:
		eventType, outcome, published = audit.AuthorizationApproved, audit.OutcomeSuccess, events.AuthorizationApproved
	case models.DecisionStepUp:
		eventType, published = audit.AuthorizationStepUp, events.AuthorizationStepUp
	}

	s.auditor.Record(ctx, audit.Event{
		Type:     eventType,
		TenantID: tenantID,
		Actor:    actor,
		Resource: resource,
		Action:   "authorize",
		Outcome:  outcome,
		Details:  details,
	})
	if a.flagged != "" {
		s.auditor.Record(ctx, audit.Event{
			Type:     a.flagged,
			TenantID: tenantID,
			Actor:    actor,
			Resource: resource,
			Action:   "authorize",
			Outcome:  audit.OutcomeDenied,
			Details:  details,
		})
	}

	s.publisher.Publish(ctx, events.New(published, tenantID, resource.ID, a.now, publicData(a, result)))
	if a.flagged == audit.SecurityVelocityFailed {
		s.publisher.Publish(ctx, events.New(events.VelocityCheckFailed, tenantID, resource.ID, a.now, a.velocity))
	}

	s.logger.InfoContext(ctx, "authorization_decided",
		"decision", result.Decision,
		"reason", result.Reason,
		"consent_id", result.ConsentID,
		"caller_id", a.callerID,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) details(ctx context.Context, a *attempt, result *models.Result) map[string]any {
	tx := a.req.Transaction
	d := map[string]any{
		"decision": string(result.Decision),
		"amount":   tx.Amount.String(),
		"currency": string(tx.Currency),
		"action":   a.req.Action,
	}
	if result.Reason != "" {
		d["reason"] = string(result.Reason)
	}
	if tx.MerchantID != "" {
		d["merchant_id"] = tx.MerchantID
	}
	if tx.MerchantName != "" {
		d["merchant_name"] = tx.MerchantName
	}
	if tx.MerchantCategory != "" {
		d["merchant_category"] = tx.MerchantCategory
	}
	if result.AuthorizationCode != "" {
		d["authorization_code"] = result.AuthorizationCode
	}
	if a.velocity != nil {
		d["risk_score"] = a.velocity.RiskScore
		if reasons := a.velocity.Reasons(); len(reasons) > 0 {
			d["velocity_reasons"] = reasons
		}
	}
	if p := requestcontext.Platform(ctx); p != "" {
		d["platform"] = p
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		d["request_id"] = id
	}
	return d
}

// publicData is the event payload. It carries no code for denied requests.
func publicData(a *attempt, result *models.Result) map[string]any {
	tx := a.req.Transaction
	data := map[string]any{
		"decision":    result.Decision,
		"consent_id":  result.ConsentID,
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"merchant_id": tx.MerchantID,
	}
	if result.Reason != "" {
		data["reason"] = result.Reason
	}
	if result.ExpiresAt != nil {
		data["expires_at"] = result.ExpiresAt
	}
	if a.claims != nil {
		data["user_id"] = a.claims.UserID()
	}
	return data
}
