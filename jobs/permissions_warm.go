package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatehouse-iam/gatehouse/internal/authz"
)

// PermissionsWarmJob pre-populates the effective-permission cache for
// users holding assignments, so post-deploy request bursts hit Redis
// instead of Postgres.
type PermissionsWarmJob struct {
	Service     *authz.Service
	Limit       int
	Concurrency int
	Logger      *slog.Logger
}

// NewPermissionsWarmJob initialises the warm handler.
func NewPermissionsWarmJob(service *authz.Service, limit int, logger *slog.Logger) *PermissionsWarmJob {
	return &PermissionsWarmJob{Service: service, Limit: limit, Concurrency: 8, Logger: logger}
}

// Handle executes one warm run.
func (j *PermissionsWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("permissions warm: handler not configured")
	}
	var payload PermissionsWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = j.Limit
	}
	if limit <= 0 {
		limit = 500
	}
	warmed, err := j.Service.WarmPermissions(ctx, limit, j.Concurrency)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("permission cache warmed",
			slog.String("run_id", payload.RunID),
			slog.Int("users", warmed))
	}
	return nil
}
