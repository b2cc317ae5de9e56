package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// EventType names what happened. The prefix groups events for export.
type EventType string

const (
	AuthorizationApproved       EventType = "authorization.approved"
	AuthorizationDenied         EventType = "authorization.denied"
	AuthorizationStepUp         EventType = "authorization.step_up"
	AuthorizationUsed           EventType = "authorization.used"
	AuthorizationVerifyFailed   EventType = "authorization.verify_failed"
	AuthorizationPersistDropped EventType = "authorization.persist_dropped"
	ConsentRevoked              EventType = "consent.revoked"
	ConsentTokenIssued          EventType = "consent.token_issued"
	SecurityVelocityFailed      EventType = "security.velocity_failed"
	SecurityRateLimited         EventType = "security.rate_limited"
	AuditExported               EventType = "audit.exported"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var eventSeverity = map[EventType]Severity{
	AuthorizationDenied:         SeverityWarning,
	AuthorizationVerifyFailed:   SeverityWarning,
	SecurityVelocityFailed:      SeverityWarning,
	SecurityRateLimited:         SeverityWarning,
	AuthorizationPersistDropped: SeverityCritical,
}

// Severity derives the severity from the event type.
func (t EventType) Severity() Severity {
	if s, ok := eventSeverity[t]; ok {
		return s
	}
	return SeverityInfo
}

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// SystemTenant holds events that cannot be attributed to a developer, such as
// authorizations whose token could not be decoded.
const SystemTenant = "__system__"

// GenesisHash is the previous_hash of the first entry in every chain.
var GenesisHash = strings.Repeat("0", 64)

type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	IP   string `json:"ip,omitempty"`
}

type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is what callers record. The ledger turns it into an Entry.
type Event struct {
	Type     EventType
	TenantID string
	Actor    Actor
	Resource Resource
	Action   string
	Outcome  string
	Details  map[string]any
}

// Entry is an immutable, chained ledger record.
type Entry struct {
	EventID       string          `json:"event_id"`
	Type          EventType       `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Severity      Severity        `json:"severity"`
	Sequence      int64           `json:"sequence"`
	TenantID      string          `json:"tenant_id"`
	Actor         Actor           `json:"actor"`
	Resource      Resource        `json:"resource"`
	Action        string          `json:"action"`
	Outcome       string          `json:"outcome"`
	Details       json.RawMessage `json:"details"`
	RetentionDays int             `json:"retention_days"`
	PreviousHash  string          `json:"previous_hash"`
	RecordHash    string          `json:"record_hash"`
	Signature     string          `json:"signature"`
}

// canonicalEntry fixes field order for hashing. Everything except
// record_hash and signature is covered.
type canonicalEntry struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	Timestamp     string          `json:"timestamp"`
	Severity      Severity        `json:"severity"`
	Sequence      int64           `json:"sequence"`
	TenantID      string          `json:"tenant_id"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id"`
	ActorIP       string          `json:"actor_ip"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Action        string          `json:"action"`
	Outcome       string          `json:"outcome"`
	Details       json.RawMessage `json:"details"`
	RetentionDays int             `json:"retention_days"`
	PreviousHash  string          `json:"previous_hash"`
}

// ComputeHash returns the SHA-256 hex digest of the canonical serialization.
func (e *Entry) ComputeHash() string {
	c := canonicalEntry{
		EventID:       e.EventID,
		EventType:     e.Type,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Severity:      e.Severity,
		Sequence:      e.Sequence,
		TenantID:      e.TenantID,
		ActorType:     e.Actor.Type,
		ActorID:       e.Actor.ID,
		ActorIP:       e.Actor.IP,
		ResourceType:  e.Resource.Type,
		ResourceID:    e.Resource.ID,
		Action:        e.Action,
		Outcome:       e.Outcome,
		Details:       CanonicalDetails(e.Details),
		RetentionDays: e.RetentionDays,
		PreviousHash:  e.PreviousHash,
	}
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// CanonicalDetails re-encodes details with sorted keys and no insignificant
// whitespace, so the hash survives storage backends that reformat JSON.
func CanonicalDetails(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Start      time.Time
	End        time.Time
	EventTypes []EventType
	ActorID    string
	ResourceID string
	Limit      int
}

// Matches reports whether e passes every set criterion.
func (f Filter) Matches(e *Entry) bool {
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.ResourceID != "" && e.Resource.ID != f.ResourceID {
		return false
	}
	if len(f.EventTypes) > 0 {
		for _, t := range f.EventTypes {
			if t == e.Type {
				return true
			}
		}
		return false
	}
	return true
}

// Integrity failure reasons.
const (
	BreakPreviousHash = "previous_hash_mismatch"
	BreakRecordHash   = "record_hash_mismatch"
	BreakSignature    = "signature_invalid"
)

type Break struct {
	EventID  string `json:"event_id"`
	Sequence int64  `json:"sequence"`
	Reason   string `json:"reason"`
}

type IntegrityReport struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entries_checked"`
	BrokenAt       *Break `json:"broken_at,omitempty"`
}

// Regulation selects export retention.
type Regulation string

const (
	RegulationSOX   Regulation = "SOX"
	RegulationFINRA Regulation = "FINRA"
	RegulationGDPR  Regulation = "GDPR"
	RegulationPCI   Regulation = "PCI"
)

var regulationRetention = map[Regulation]int{
	RegulationSOX:   2555,
	RegulationFINRA: 2190,
	RegulationGDPR:  1825,
	RegulationPCI:   365,
}

// ParseRegulation is case-insensitive and reports false for unknown values.
func ParseRegulation(s string) (Regulation, bool) {
	r := Regulation(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := regulationRetention[r]
	return r, ok
}

func (r Regulation) RetentionDays() int {
	return regulationRetention[r]
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Export is a compliance export of one tenant's entries.
type Export struct {
	Regulation      Regulation      `json:"regulation"`
	RetentionDays   int             `json:"retention_days"`
	ExportTimestamp time.Time       `json:"export_timestamp"`
	Period          Period          `json:"period"`
	TenantID        string          `json:"tenant_id"`
	TotalEntries    int             `json:"total_entries"`
	Entries         []Entry         `json:"entries"`
	IntegrityCheck  IntegrityReport `json:"integrity_check"`
}
