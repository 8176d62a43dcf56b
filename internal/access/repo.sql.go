package access

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
)

// Repository provides PostgreSQL backed persistence for roles, grants,
// assignments and overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertRole inserts or updates a role keyed by its unique name.
func (r *Repository) UpsertRole(ctx context.Context, name, description string) (RoleDefinition, error) {
	var role RoleDefinition
	err := withConflictRetry(func() error {
		row := r.pool.QueryRow(ctx, `
			INSERT INTO role_definitions (name, description, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
			RETURNING id, name, description, created_at, updated_at`, name, description)
		return row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	})
	if err != nil {
		return RoleDefinition{}, err
	}
	return role, nil
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (RoleDefinition, error) {
	var role RoleDefinition
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM role_definitions WHERE id = $1`, id)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleDefinition{}, ErrUnknownRole
		}
		return RoleDefinition{}, err
	}
	return role, nil
}

// ListRoleDefinitions returns all roles ordered by name.
func (r *Repository) ListRoleDefinitions(ctx context.Context) ([]RoleDefinition, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM role_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleDefinition
	for rows.Next() {
		var role RoleDefinition
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteRole removes a role. Roles still referenced by assignments are
// protected by the FK constraint and surface ErrRoleInUse.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_definitions WHERE id = $1`, id)
	if err != nil {
		if isFKViolation(err) {
			return ErrRoleInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownRole
	}
	return nil
}

// UpsertGrant records a role-level allow/deny for one permission, keyed on
// (role_id, permission).
func (r *Repository) UpsertGrant(ctx context.Context, roleID int64, perm catalog.Permission, allow bool) error {
	return withConflictRetry(func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO role_grants (role_id, permission, allow, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (role_id, permission) DO UPDATE SET allow = EXCLUDED.allow, updated_at = NOW()`,
			roleID, string(perm), allow)
		if isFKViolation(err) {
			return ErrUnknownRole
		}
		return err
	})
}

// ListGrants returns every grant row for a role.
func (r *Repository) ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, permission, allow, updated_at FROM role_grants WHERE role_id = $1 ORDER BY permission`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ListGrantsForUser returns every grant across all roles attached to the
// user, the input to a resolution snapshot.
func (r *Repository) ListGrantsForUser(ctx context.Context, userID uuid.UUID) ([]PermissionGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.role_id, g.permission, g.allow, g.updated_at
		FROM role_grants g
		JOIN user_roles ur ON ur.role_id = g.role_id
		WHERE ur.user_id = $1
		ORDER BY g.permission`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// AttachRole assigns a role to a user. Re-attaching is a no-op.
func (r *Repository) AttachRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	return withConflictRetry(func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
		return mapAssignmentFK(err)
	})
}

// DetachRole removes an assignment. Detaching an absent pair is a no-op.
func (r *Repository) DetachRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// ListAssignedRoles returns the role definitions attached to a user.
func (r *Repository) ListAssignedRoles(ctx context.Context, userID uuid.UUID) ([]RoleDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rd.id, rd.name, rd.description, rd.created_at, rd.updated_at
		FROM role_definitions rd
		JOIN user_roles ur ON ur.role_id = rd.id
		WHERE ur.user_id = $1
		ORDER BY rd.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleDefinition
	for rows.Next() {
		var role RoleDefinition
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpsertOverride records a per-user allow/deny exception keyed on
// (user_id, permission). Last write wins.
func (r *Repository) UpsertOverride(ctx context.Context, userID uuid.UUID, perm catalog.Permission, allow bool) error {
	return withConflictRetry(func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO user_overrides (user_id, permission, allow, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id, permission) DO UPDATE SET allow = EXCLUDED.allow, updated_at = NOW()`,
			userID, string(perm), allow)
		if isFKViolation(err) {
			return ErrUnknownUser
		}
		return err
	})
}

// DeleteOverride removes an override; resolution reverts to the pure
// role-derived outcome.
func (r *Repository) DeleteOverride(ctx context.Context, userID uuid.UUID, perm catalog.Permission) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_overrides WHERE user_id = $1 AND permission = $2`, userID, string(perm))
	return err
}

// ListOverrides returns every override row for a user.
func (r *Repository) ListOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, permission, allow, updated_at FROM user_overrides WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []UserOverride
	for rows.Next() {
		var ov UserOverride
		var perm string
		if err := rows.Scan(&ov.UserID, &perm, &ov.Allow, &ov.UpdatedAt); err != nil {
			return nil, err
		}
		ov.Permission = catalog.Permission(perm)
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// UserExists reports whether the identity store knows the user id.
func (r *Repository) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func scanGrants(rows pgx.Rows) ([]PermissionGrant, error) {
	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		var perm string
		if err := rows.Scan(&g.RoleID, &perm, &g.Allow, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.Permission = catalog.Permission(perm)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// withConflictRetry re-runs an upsert once when a concurrent writer raced it
// into a unique violation. A second failure is surfaced as-is.
func withConflictRetry(fn func() error) error {
	err := fn()
	if isUniqueViolation(err) {
		err = fn()
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// mapAssignmentFK distinguishes which side of a user_roles insert dangled.
// Postgres auto-names both constraints with the table prefix
// (user_roles_user_id_fkey, user_roles_role_id_fkey), so the column name is
// the only discriminating part.
func mapAssignmentFK(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "role_id") {
		return ErrUnknownRole
	}
	return ErrUnknownUser
}
