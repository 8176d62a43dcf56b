package identity

import (
	"time"

	"github.com/google/uuid"
)

// User represents a marketplace account as the identity store sees it. The
// coarse role label lives here; fine-grained roles are owned by the access
// package.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CoarseRole   CoarseRole
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
