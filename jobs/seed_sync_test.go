package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/nyumbani/nyumbani-access/testing"
)

func TestNewSeedSyncTask(t *testing.T) {
	task, err := NewSeedSyncTask(3)
	require.NoError(t, err)
	assert.Equal(t, TaskSeedSync, task.Type())

	var payload SeedSyncPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 3, payload.BundleVersion)
}

func TestNewCatalogIntegrityTask(t *testing.T) {
	task, err := NewCatalogIntegrityTask(true)
	require.NoError(t, err)
	assert.Equal(t, TaskCatalogIntegrity, task.Type())

	var payload CatalogIntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.True(t, payload.FailOnDangling)
}

func TestSeedSyncSkipsMalformedPayload(t *testing.T) {
	job := NewSeedSyncJob(nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSeedSync, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSeedSyncSkipsStaleBundleVersion(t *testing.T) {
	// A stale bundle version is dropped without touching the service, so a
	// nil service is safe here.
	job := NewSeedSyncJob(nil, nil)

	task, err := NewSeedSyncTask(-1)
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestCatalogIntegritySkipsMalformedPayload(t *testing.T) {
	job := NewCatalogIntegrityJob(nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogIntegrity, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
