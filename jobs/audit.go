package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coworkhub/coworkhub/internal/audit"
	jobmetrics "github.com/coworkhub/coworkhub/internal/jobs"
)

// AuditPersistJob writes queued audit entries to durable storage.
type AuditPersistJob struct {
	sink    audit.Sink
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditPersistJob constructs the job.
func NewAuditPersistJob(sink audit.Sink, logger *slog.Logger) *AuditPersistJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPersistJob{sink: sink, logger: logger}
}

// WithMetrics attaches run instrumentation.
func (j *AuditPersistJob) WithMetrics(m *jobmetrics.Metrics) *AuditPersistJob {
	j.metrics = m
	return j
}

// Handle processes TaskAuditPersist tasks. Undecodable payloads are not retried.
func (j *AuditPersistJob) Handle(ctx context.Context, t *asynq.Task) error {
	return j.metrics.Track(TaskAuditPersist).End(j.handle(ctx, t))
}

func (j *AuditPersistJob) handle(ctx context.Context, t *asynq.Task) error {
	entry, err := audit.DecodePersistTask(t)
	if err != nil {
		j.logger.Warn("audit persist: bad payload", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := entry.Validate(); err != nil {
		j.logger.Warn("audit persist: invalid entry", slog.Any("error", err), slog.String("id", entry.ID))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := j.sink.Write(ctx, entry); err != nil {
		return fmt.Errorf("jobs: persist audit %s: %w", entry.ID, err)
	}
	return nil
}

// Purger deletes audit entries older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// AuditPurgeJob enforces audit log retention.
type AuditPurgeJob struct {
	store   Purger
	logger  *slog.Logger
	now     func() time.Time
	metrics *jobmetrics.Metrics
}

// NewAuditPurgeJob constructs the job. now may be nil.
func NewAuditPurgeJob(store Purger, logger *slog.Logger, now func() time.Time) *AuditPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AuditPurgeJob{store: store, logger: logger, now: now}
}

// WithMetrics attaches run instrumentation.
func (j *AuditPurgeJob) WithMetrics(m *jobmetrics.Metrics) *AuditPurgeJob {
	j.metrics = m
	return j
}

// Handle processes TaskAuditPurge tasks.
func (j *AuditPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	return j.metrics.Track(TaskAuditPurge).End(j.handle(ctx, t))
}

func (j *AuditPurgeJob) handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RetentionDays <= 0 {
		return fmt.Errorf("%w: invalid purge payload", asynq.SkipRetry)
	}
	cutoff := j.now().UTC().AddDate(0, 0, -payload.RetentionDays)
	removed, err := j.store.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("jobs: purge audit: %w", err)
	}
	j.metrics.AddPurged(removed)
	j.logger.Info("audit purge", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return nil
}
