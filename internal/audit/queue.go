package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskPersist carries one entry to the worker for storage.
	TaskPersist = "audit:persist"
	// QueueAudit is the asynq queue for audit persistence.
	QueueAudit = "audit"
)

// Enqueuer is the subset of asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands entries to the background worker through asynq.
type QueueSink struct {
	client   Enqueuer
	maxRetry int
}

// NewQueueSink wraps an asynq client.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client, maxRetry: 5}
}

// NewPersistTask encodes entry as an asynq task.
func NewPersistTask(entry Entry) (*asynq.Task, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: encode task: %w", err)
	}
	return asynq.NewTask(TaskPersist, payload), nil
}

// DecodePersistTask extracts the entry from a task payload.
func DecodePersistTask(t *asynq.Task) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return Entry{}, fmt.Errorf("audit: decode task: %w", err)
	}
	return entry, nil
}

// Write enqueues entry. The entry ID doubles as task ID so retries of the
// enqueue itself are deduplicated by asynq.
func (s *QueueSink) Write(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	task, err := NewPersistTask(entry)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(QueueAudit), asynq.MaxRetry(s.maxRetry)}
	if entry.ID != "" {
		opts = append(opts, asynq.TaskID(entry.ID))
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("audit: enqueue: %w", err)
	}
	return nil
}
