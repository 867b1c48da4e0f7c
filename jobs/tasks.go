package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPrune deletes audit entries past the retention window.
	TaskAuditPrune = "audit:prune"
	// TaskPermissionsWarm pre-loads effective-permission cache entries.
	TaskPermissionsWarm = "authz:warm_cache"
)

// AuditPrunePayload parameterises a prune run. RunID correlates worker
// logs with the scheduler entry that triggered them.
type AuditPrunePayload struct {
	RunID string `json:"run_id"`
}

// NewAuditPruneTask constructs an Asynq task.
func NewAuditPruneTask() (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{RunID: uuid.NewString()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}

// PermissionsWarmPayload parameterises a cache warm run.
type PermissionsWarmPayload struct {
	RunID string `json:"run_id"`
	Limit int    `json:"limit,omitempty"`
}

// NewPermissionsWarmTask constructs an Asynq task.
func NewPermissionsWarmTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionsWarmPayload{RunID: uuid.NewString(), Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsWarm, data), nil
}
