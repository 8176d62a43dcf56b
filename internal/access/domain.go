// Package access implements role definitions, permission grants, per-user
// overrides and the effective-permission resolver for the Nyumbani
// marketplace.
package access

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
)

// RoleDefinition is a named, administratively managed bundle of grants.
// The name is the stable natural key used by seeding and admin tooling.
type RoleDefinition struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PermissionGrant is a role-level allow/deny statement for one permission.
// Allow=false records an explicit deny, distinct from the tag not being
// mentioned at all.
type PermissionGrant struct {
	RoleID     int64
	Permission catalog.Permission
	Allow      bool
	UpdatedAt  time.Time
}

// RoleAssignment links a user to a role definition.
type RoleAssignment struct {
	UserID    uuid.UUID
	RoleID    int64
	CreatedAt time.Time
}

// UserOverride is a per-user allow/deny exception that beats every
// role-derived grant for its permission.
type UserOverride struct {
	UserID     uuid.UUID
	Permission catalog.Permission
	Allow      bool
	UpdatedAt  time.Time
}

var (
	// ErrUnknownPermission flags a tag outside the compiled catalog. This is
	// a programmer or config bug, surfaced as a server error.
	ErrUnknownPermission = errors.New("access: unknown permission")
	// ErrUnknownRole flags a dangling role id.
	ErrUnknownRole = errors.New("access: unknown role")
	// ErrUnknownUser flags a dangling user id.
	ErrUnknownUser = errors.New("access: unknown user")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("access: not found")
	// ErrRoleInUse blocks deletion of a role that users still reference.
	ErrRoleInUse = errors.New("access: role still assigned")
)
