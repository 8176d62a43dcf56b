package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogIntegrity scans for grant/override rows referencing
	// permission tags outside the compiled catalog.
	TaskCatalogIntegrity = "access:catalog_integrity"
	// TaskSeedSync re-applies the versioned default role bundle.
	TaskSeedSync = "access:seed_sync"
)

// CatalogIntegrityPayload configures an integrity sweep.
type CatalogIntegrityPayload struct {
	FailOnDangling bool `json:"fail_on_dangling"`
}

// NewCatalogIntegrityTask constructs an integrity sweep task.
func NewCatalogIntegrityTask(failOnDangling bool) (*asynq.Task, error) {
	data, err := json.Marshal(CatalogIntegrityPayload{FailOnDangling: failOnDangling})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogIntegrity, data), nil
}

// SeedSyncPayload configures a default-bundle sync.
type SeedSyncPayload struct {
	BundleVersion int `json:"bundle_version"`
}

// NewSeedSyncTask constructs a seed sync task.
func NewSeedSyncTask(bundleVersion int) (*asynq.Task, error) {
	data, err := json.Marshal(SeedSyncPayload{BundleVersion: bundleVersion})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSeedSync, data), nil
}
