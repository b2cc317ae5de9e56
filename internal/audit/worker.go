package audit

import (
	"context"
	"time"

	"agentauth/pkg/requestcontext"
)

const (
	recordBatchSize     = 100
	defaultDrainTimeout = 5 * time.Second
)

// Run drains events queued by Record until ctx is cancelled, then appends
// whatever is still queued before returning. It never returns an append
// error: a failed entry is logged and counted.
func (l *Ledger) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "audit_worker_started")
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultDrainTimeout)
			l.flush(drainCtx)
			cancel()
			l.logger.InfoContext(drainCtx, "audit_worker_stopped", "remaining", l.pending.Len())
			return nil
		case <-l.pending.Ready():
			l.flush(ctx)
		}
	}
}

// Flush appends everything queued so far. Tests and shutdown use it directly.
func (l *Ledger) Flush(ctx context.Context) {
	l.flush(ctx)
}

func (l *Ledger) flush(ctx context.Context) {
	for {
		batch := l.pending.PopBatch(recordBatchSize)
		if len(batch) == 0 {
			l.metrics.SetQueueDepth(0)
			return
		}
		for _, p := range batch {
			if ctx.Err() != nil {
				l.logger.WarnContext(ctx, "audit_flush_aborted", "event_type", p.event.Type)
				return
			}
			eventCtx := requestcontext.WithRequestID(ctx, p.requestID)
			if _, err := l.appendAt(eventCtx, p.event, p.at); err != nil {
				l.logger.ErrorContext(eventCtx, "audit_record_failed",
					"event_type", p.event.Type,
					"tenant_id", p.event.TenantID,
					"error", err,
				)
			}
		}
		l.metrics.SetQueueDepth(l.pending.Len())
	}
}

// Pending reports how many events are queued.
func (l *Ledger) Pending() int {
	return l.pending.Len()
}
