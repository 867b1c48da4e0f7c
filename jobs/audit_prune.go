package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-iam/gatehouse/internal/audit"
)

// AuditPruneJob removes audit entries older than the retention window.
type AuditPruneJob struct {
	Audit     *audit.Logger
	Retention time.Duration
	Logger    *slog.Logger
}

// NewAuditPruneJob initialises the prune handler.
func NewAuditPruneJob(auditLogger *audit.Logger, retention time.Duration, logger *slog.Logger) *AuditPruneJob {
	return &AuditPruneJob{Audit: auditLogger, Retention: retention, Logger: logger}
}

// Handle executes one prune run.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	removed, err := j.Audit.Prune(ctx, retention)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("audit prune complete",
			slog.String("run_id", payload.RunID),
			slog.Int64("removed", removed))
	}
	return nil
}
