package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nyumbani/nyumbani-access/internal/access"
)

// SeedSyncJob re-applies the versioned default role bundle. Because every
// write is a keyed idempotent upsert, the job is safe to run while the API
// serves live traffic, and a retried partial run converges.
type SeedSyncJob struct {
	service *access.Service
	logger  *slog.Logger
}

// NewSeedSyncJob constructs the job.
func NewSeedSyncJob(service *access.Service, logger *slog.Logger) *SeedSyncJob {
	return &SeedSyncJob{service: service, logger: logger}
}

// Handle processes TaskSeedSync tasks.
func (j *SeedSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SeedSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BundleVersion != 0 && payload.BundleVersion != access.DefaultsVersion {
		if j.logger != nil {
			j.logger.Warn("seed sync skipped, bundle version mismatch",
				slog.Int("requested", payload.BundleVersion),
				slog.Int("current", access.DefaultsVersion))
		}
		return nil
	}
	if err := access.ApplyDefaults(ctx, j.service, uuid.Nil); err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("seed sync applied", slog.Int("bundle_version", access.DefaultsVersion))
	}
	return nil
}
