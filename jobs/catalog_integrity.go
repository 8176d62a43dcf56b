package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
)

// CatalogIntegrityJob scans persisted grants and overrides for permission
// tags the compiled catalog no longer contains.
type CatalogIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewCatalogIntegrityJob constructs the job.
func NewCatalogIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *CatalogIntegrityJob {
	return &CatalogIntegrityJob{pool: pool, logger: logger}
}

// Handle processes TaskCatalogIntegrity tasks.
func (j *CatalogIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CatalogIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	dangling, err := catalog.CheckIntegrity(ctx, j.pool)
	if err != nil {
		return err
	}
	if len(dangling) == 0 {
		if j.logger != nil {
			j.logger.Info("catalog integrity ok", slog.Int("catalog_version", catalog.Version))
		}
		return nil
	}
	for _, d := range dangling {
		if j.logger != nil {
			j.logger.Error("dangling permission reference",
				slog.String("table", d.Table),
				slog.String("permission", d.Permission),
				slog.Int64("rows", d.Rows))
		}
	}
	if payload.FailOnDangling {
		return fmt.Errorf("jobs: %d dangling permission tag(s) found", len(dangling))
	}
	return nil
}
