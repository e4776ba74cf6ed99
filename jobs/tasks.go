package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/coworkhub/coworkhub/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit receives audit persistence tasks.
	QueueAudit = audit.QueueAudit

	// TaskAuditPersist stores one security audit entry.
	TaskAuditPersist = audit.TaskPersist
	// TaskAuditPurge removes audit entries past retention.
	TaskAuditPurge = "audit:purge"
)

// AuditPurgePayload configures a purge run.
type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditPurgeTask constructs the purge task.
func NewAuditPurgeTask(retentionDays int) (*asynq.Task, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("jobs: retention must be positive, got %d", retentionDays)
	}
	data, err := json.Marshal(AuditPurgePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data), nil
}
