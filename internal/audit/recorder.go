// Package audit persists the mutation history of the access-control
// state. Current state lives in the access package; this package only
// records who changed what, when.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Change is one recorded mutation: actor, target and the before/after
// values serialised into the meta column.
type Change struct {
	ActorID  uuid.UUID
	Action   string
	Entity   string
	EntityID string
	OldValue any
	NewValue any
	At       time.Time
}

// Recorder writes changes into audit_logs.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record persists the change. A nil receiver is a no-op so callers can run
// without auditing configured.
func (r *Recorder) Record(ctx context.Context, change Change) error {
	if r == nil {
		return nil
	}
	if change.Action == "" || change.Entity == "" || change.EntityID == "" {
		return errors.New("audit: change requires action/entity/entity_id")
	}
	meta, err := json.Marshal(map[string]any{
		"old": change.OldValue,
		"new": change.NewValue,
	})
	if err != nil {
		return err
	}
	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		change.ActorID, change.Action, change.Entity, change.EntityID, meta, at)
	return err
}
