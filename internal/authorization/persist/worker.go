// Package persist writes authorization records to the durable store off the
// request path. The request path enqueues jobs and returns; a single worker
// flushes them in batches on a fixed interval, retries failures a bounded
// number of times, and records an audit entry for anything it abandons.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agentauth/internal/audit"
	"agentauth/internal/authorization/metrics"
	"agentauth/internal/authorization/models"
	"agentauth/internal/platform/logger"
	"agentauth/internal/platform/queue"
	"agentauth/pkg/platform/sentinel"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultMaxAttempts   = 3
	DefaultDrainTimeout  = 5 * time.Second
)

// Store is the durable authorization store.
type Store interface {
	SaveBatch(ctx context.Context, records []*models.Record) error
	MarkUsed(ctx context.Context, code string, at time.Time, verifiedBy string) error
}

// Auditor records abandoned writes.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

type Worker struct {
	store        Store
	queue        *queue.Ring[models.Job]
	batchSize    int
	interval     time.Duration
	maxAttempts  int
	drainTimeout time.Duration
	auditor      Auditor
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Worker)

func WithCapacity(n int) Option {
	return func(w *Worker) {
		w.queue = queue.New[models.Job](n)
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithDrainTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.drainTimeout = d
		}
	}
}

func WithAuditor(a Auditor) Option {
	return func(w *Worker) {
		w.auditor = a
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(store Store, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, errors.New("authorization store is required")
	}
	w := &Worker{
		store:        store,
		queue:        queue.New[models.Job](queue.DefaultCapacity),
		batchSize:    DefaultBatchSize,
		interval:     DefaultFlushInterval,
		maxAttempts:  DefaultMaxAttempts,
		drainTimeout: DefaultDrainTimeout,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Enqueue adds job without blocking. When the queue is full the oldest job
// is dropped.
func (w *Worker) Enqueue(ctx context.Context, job models.Job) {
	evicted, dropped := w.queue.Push(job)
	if dropped {
		w.drop(ctx, evicted, "overflow", nil)
	}
	w.metrics.SetQueueDepth(w.queue.Len())
}

// Pending reports how many jobs are queued.
func (w *Worker) Pending() int {
	return w.queue.Len()
}

// Run flushes on every interval until ctx is cancelled, then drains the queue
// within the drain timeout before returning.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.InfoContext(ctx, "persist_worker_started", "interval", w.interval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.drainTimeout)
			w.Drain(drainCtx)
			cancel()
			w.logger.InfoContext(drainCtx, "persist_worker_stopped", "remaining", w.queue.Len())
			return nil
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush processes the jobs queued at the time of the call once. Jobs that
// fail are requeued for the next flush.
func (w *Worker) Flush(ctx context.Context) {
	remaining := w.queue.Len()
	for remaining > 0 && ctx.Err() == nil {
		batch := w.queue.PopBatch(min(remaining, w.batchSize))
		if len(batch) == 0 {
			break
		}
		remaining -= len(batch)
		w.process(ctx, batch)
	}
	w.metrics.SetQueueDepth(w.queue.Len())
}

// Drain flushes until the queue is empty or ctx is done. Each pass spends one
// attempt of every failing job, so it terminates after at most maxAttempts
// passes.
func (w *Worker) Drain(ctx context.Context) {
	for w.queue.Len() > 0 && ctx.Err() == nil {
		w.Flush(ctx)
	}
}

func (w *Worker) process(ctx context.Context, batch []models.Job) {
	var (
		inserts    []models.Job
		records    []*models.Record
		markedUsed []models.Job
	)
	for _, job := range batch {
		switch job.Kind {
		case models.JobInsert:
			inserts = append(inserts, job)
			records = append(records, job.Record)
		case models.JobMarkUsed:
			markedUsed = append(markedUsed, job)
		}
	}

	if len(records) > 0 {
		if err := w.store.SaveBatch(ctx, records); err != nil {
			w.logger.WarnContext(ctx, "persist_batch_failed", "count", len(records), "error", err)
			for _, job := range inserts {
				w.retry(ctx, job, err)
			}
		} else {
			w.metrics.AddPersisted(string(models.JobInsert), len(records))
		}
	}

	// Inserts in this batch are applied first so a code issued and redeemed
	// within one interval lands in order.
	for _, job := range markedUsed {
		err := w.store.MarkUsed(ctx, job.Code, job.UsedAt, job.VerifiedBy)
		switch {
		case err == nil, errors.Is(err, sentinel.ErrAlreadyUsed):
			w.metrics.AddPersisted(string(models.JobMarkUsed), 1)
		default:
			w.retry(ctx, job, err)
		}
	}
}

func (w *Worker) retry(ctx context.Context, job models.Job, cause error) {
	job.Attempts++
	if job.Attempts >= w.maxAttempts {
		w.drop(ctx, job, "exhausted", cause)
		return
	}
	w.metrics.IncrementRetries()
	if evicted, dropped := w.queue.Push(job); dropped {
		w.drop(ctx, evicted, "overflow", nil)
	}
}

func (w *Worker) drop(ctx context.Context, job models.Job, cause string, err error) {
	w.metrics.IncrementDropped(cause)
	w.logger.ErrorContext(ctx, "persist_job_dropped",
		"kind", job.Kind,
		"authorization_code", job.Code,
		"attempts", job.Attempts,
		"cause", cause,
		"error", err,
	)
	if w.auditor == nil {
		return
	}
	details := map[string]any{
		"job":      string(job.Kind),
		"attempts": job.Attempts,
		"cause":    cause,
	}
	if err != nil {
		details["error"] = err.Error()
	}
	w.auditor.Record(ctx, audit.Event{
		Type:     audit.AuthorizationPersistDropped,
		TenantID: job.TenantID,
		Actor:    audit.Actor{Type: "system", ID: "persist-worker"},
		Resource: audit.Resource{Type: "authorization", ID: job.Code},
		Action:   "persist",
		Outcome:  audit.OutcomeFailure,
		Details:  details,
	})
}
