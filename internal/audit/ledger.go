// Package audit is the append-only, hash-chained and signed ledger of
// security-relevant events. Each tenant has its own chain: every entry embeds
// the hash of its predecessor and an Ed25519 signature over its own hash, so
// VerifyIntegrity can point at the first entry that was altered, removed or
// forged.
package audit

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agentauth/internal/audit/metrics"
	"agentauth/internal/platform/logger"
	"agentauth/internal/platform/queue"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/requestcontext"
)

const (
	DefaultRetentionDays = 2555
	eventIDPrefix        = "aud_"
)

// Ledger appends and verifies audit chains.
type Ledger struct {
	store         Store
	key           ed25519.PrivateKey
	retentionDays int
	pending       *queue.Ring[pendingEvent]
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type pendingEvent struct {
	event     Event
	at        time.Time
	requestID string
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) {
		led.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(led *Ledger) {
		led.metrics = m
	}
}

func WithRetentionDays(days int) Option {
	return func(led *Ledger) {
		if days > 0 {
			led.retentionDays = days
		}
	}
}

// WithQueueCapacity bounds the Record queue.
func WithQueueCapacity(n int) Option {
	return func(led *Ledger) {
		led.pending = queue.New[pendingEvent](n)
	}
}

func New(store Store, key ed25519.PrivateKey, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("audit signing key is required")
	}
	l := &Ledger{
		store:         store,
		key:           key,
		retentionDays: DefaultRetentionDays,
		pending:       queue.New[pendingEvent](queue.DefaultCapacity),
		logger:        logger.Discard(),
		tracer:        otel.Tracer("agentauth/audit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// PublicKey verifies entry signatures.
func (l *Ledger) PublicKey() ed25519.PublicKey {
	return l.key.Public().(ed25519.PublicKey)
}

// Append writes the event synchronously and returns the chained entry.
func (l *Ledger) Append(ctx context.Context, event Event) (*Entry, error) {
	return l.appendAt(ctx, event, requestcontext.Now(ctx))
}

// Record queues the event for the background worker and returns at once.
// The entry keeps the time of the call, not of the write.
func (l *Ledger) Record(ctx context.Context, event Event) {
	evicted, dropped := l.pending.Push(pendingEvent{
		event:     event,
		at:        requestcontext.Now(ctx),
		requestID: requestcontext.RequestID(ctx),
	})
	if dropped {
		l.metrics.IncrementDropped()
		l.logger.WarnContext(ctx, "audit_event_dropped",
			"event_type", evicted.event.Type,
			"tenant_id", evicted.event.TenantID,
		)
	}
	l.metrics.SetQueueDepth(l.pending.Len())
}

func (l *Ledger) appendAt(ctx context.Context, event Event, at time.Time) (*Entry, error) {
	ctx, span := l.tracer.Start(ctx, "audit.append", trace.WithAttributes(
		attribute.String("audit.event_type", string(event.Type)),
	))
	defer span.End()
	start := time.Now()

	tenant := event.TenantID
	if tenant == "" {
		tenant = SystemTenant
	}
	details, err := encodeDetails(event.Details)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "audit details are not encodable")
	}
	ts := at.UTC().Truncate(time.Microsecond)

	entry, err := l.store.Append(ctx, tenant, func(head Head) (*Entry, error) {
		e := &Entry{
			EventID:       eventIDPrefix + ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String(),
			Type:          event.Type,
			Timestamp:     ts,
			Severity:      event.Type.Severity(),
			Sequence:      head.Sequence + 1,
			TenantID:      tenant,
			Actor:         event.Actor,
			Resource:      event.Resource,
			Action:        event.Action,
			Outcome:       event.Outcome,
			Details:       details,
			RetentionDays: l.retentionDays,
			PreviousHash:  head.PreviousHash(),
		}
		e.RecordHash = e.ComputeHash()
		e.Signature = sign(l.key, e.RecordHash)
		return e, nil
	})
	l.metrics.ObserveAppendLatency(time.Since(start))
	if err != nil {
		l.metrics.IncrementAppendFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	l.metrics.IncrementAppended(string(entry.Type))
	span.SetAttributes(attribute.Int64("audit.sequence", entry.Sequence))
	return entry, nil
}

func encodeDetails(details map[string]any) (json.RawMessage, error) {
	if len(details) == 0 {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	return CanonicalDetails(raw), nil
}

// Query returns the tenant's entries in chain order.
func (l *Ledger) Query(ctx context.Context, tenantID string, filter Filter) ([]Entry, error) {
	entries, err := l.store.List(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// VerifyIntegrity recomputes the tenant's whole chain.
func (l *Ledger) VerifyIntegrity(ctx context.Context, tenantID string) (IntegrityReport, error) {
	entries, err := l.store.List(ctx, tenantID, Filter{})
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("load audit chain: %w", err)
	}
	report := VerifyChain(entries, l.PublicKey())
	if !report.Valid {
		l.logger.ErrorContext(ctx, "audit_chain_broken",
			"tenant_id", tenantID,
			"event_id", report.BrokenAt.EventID,
			"sequence", report.BrokenAt.Sequence,
			"reason", report.BrokenAt.Reason,
		)
	}
	return report, nil
}

// Export collects the tenant's entries in [start, end] for a regulation,
// with an integrity check of the full chain. The export itself is audited.
func (l *Ledger) Export(ctx context.Context, tenantID string, regulation Regulation, start, end time.Time, actor Actor) (*Export, error) {
	if end.Before(start) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "end must not be before start")
	}
	entries, err := l.Query(ctx, tenantID, Filter{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	integrity, err := l.VerifyIntegrity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	export := &Export{
		Regulation:      regulation,
		RetentionDays:   regulation.RetentionDays(),
		ExportTimestamp: requestcontext.Now(ctx).UTC(),
		Period:          Period{Start: start.UTC(), End: end.UTC()},
		TenantID:        tenantID,
		TotalEntries:    len(entries),
		Entries:         entries,
		IntegrityCheck:  integrity,
	}

	if _, err := l.Append(ctx, Event{
		Type:     AuditExported,
		TenantID: tenantID,
		Actor:    actor,
		Resource: Resource{Type: "audit_log", ID: tenantID},
		Action:   "export",
		Outcome:  OutcomeSuccess,
		Details: map[string]any{
			"regulation":    string(regulation),
			"total_entries": len(entries),
			"chain_valid":   integrity.Valid,
		},
	}); err != nil {
		l.logger.WarnContext(ctx, "audit_export_not_recorded", "tenant_id", tenantID, "error", err)
	}
	return export, nil
}
