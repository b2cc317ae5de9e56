// Package events publishes domain events for downstream consumers
// (notifications, analytics, fraud tooling). Publishing is best effort: a
// failure is logged and counted but never changes a decision already made.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event.
type Type string

const (
	AuthorizationApproved Type = "agentauth.authorization.approved"
	AuthorizationDenied   Type = "agentauth.authorization.denied"
	AuthorizationStepUp   Type = "agentauth.authorization.step_up"
	AuthorizationUsed     Type = "agentauth.authorization.used"
	ConsentRevoked        Type = "agentauth.consent.revoked"
	VelocityCheckFailed   Type = "agentauth.security.velocity_check_failed"
)

const (
	SpecVersion = "1.0"
	Source      = "agentauth"
)

// Event is a CloudEvents 1.0 structured-mode envelope.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            Type            `json:"type"`
	Time            time.Time       `json:"time"`
	Subject         string          `json:"subject,omitempty"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`

	// TenantID partitions the event stream. It is not part of the envelope.
	TenantID string `json:"-"`
}

// New builds an event around data. A data value that cannot be encoded
// produces an event with null data.
func New(eventType Type, tenantID, subject string, at time.Time, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Event{
		SpecVersion:     SpecVersion,
		ID:              uuid.NewString(),
		Source:          Source,
		Type:            eventType,
		Time:            at.UTC(),
		Subject:         subject,
		DataContentType: "application/json",
		Data:            raw,
		TenantID:        tenantID,
	}
}

// Publisher delivers events. Implementations must not block the caller on
// broker round trips.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
