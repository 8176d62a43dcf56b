package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nyumbani/nyumbani-access/internal/audit"
	"github.com/nyumbani/nyumbani-access/internal/catalog"
	"github.com/nyumbani/nyumbani-access/internal/identity"
)

// RepositoryPort defines the data access methods the service relies on.
type RepositoryPort interface {
	UpsertRole(ctx context.Context, name, description string) (RoleDefinition, error)
	GetRole(ctx context.Context, id int64) (RoleDefinition, error)
	ListRoleDefinitions(ctx context.Context) ([]RoleDefinition, error)
	DeleteRole(ctx context.Context, id int64) error
	UpsertGrant(ctx context.Context, roleID int64, perm catalog.Permission, allow bool) error
	ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error)
	ListGrantsForUser(ctx context.Context, userID uuid.UUID) ([]PermissionGrant, error)
	AttachRole(ctx context.Context, userID uuid.UUID, roleID int64) error
	DetachRole(ctx context.Context, userID uuid.UUID, roleID int64) error
	ListAssignedRoles(ctx context.Context, userID uuid.UUID) ([]RoleDefinition, error)
	UpsertOverride(ctx context.Context, userID uuid.UUID, perm catalog.Permission, allow bool) error
	DeleteOverride(ctx context.Context, userID uuid.UUID, perm catalog.Permission) error
	ListOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service orchestrates role, grant, assignment and override operations and
// answers resolution queries. Mutations notify the audit recorder and bump
// the effective-set cache; both collaborators are optional.
type Service struct {
	repo  RepositoryPort
	audit *audit.Recorder
	cache *Cache

	resolveGroup singleflight.Group
}

// NewService wires the repository with its optional collaborators.
func NewService(repo RepositoryPort, recorder *audit.Recorder, cache *Cache) *Service {
	return &Service{repo: repo, audit: recorder, cache: cache}
}

// UpsertRole creates or updates a role keyed by name. Re-running with
// identical arguments converges to the same single row.
func (s *Service) UpsertRole(ctx context.Context, actor uuid.UUID, name, description string) (RoleDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoleDefinition{}, errors.New("access: role name required")
	}
	role, err := s.repo.UpsertRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return RoleDefinition{}, err
	}
	s.record(ctx, actor, "role.upsert", "role_definitions", role.Name, nil, map[string]any{
		"name":        role.Name,
		"description": role.Description,
	})
	return role, nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleDefinition, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoleDefinitions returns every role.
func (s *Service) ListRoleDefinitions(ctx context.Context) ([]RoleDefinition, error) {
	return s.repo.ListRoleDefinitions(ctx)
}

// DeleteRole removes an unreferenced role.
func (s *Service) DeleteRole(ctx context.Context, actor uuid.UUID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "role.delete", "role_definitions", role.Name, map[string]any{"name": role.Name}, nil)
	s.bump(ctx)
	return nil
}

// SetGrant upserts the (role, permission) grant row.
func (s *Service) SetGrant(ctx context.Context, actor uuid.UUID, roleID int64, perm catalog.Permission, allow bool) error {
	if !catalog.IsKnown(perm) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	old := s.lookupGrant(ctx, roleID, perm)
	if err := s.repo.UpsertGrant(ctx, roleID, perm, allow); err != nil {
		return err
	}
	s.record(ctx, actor, "grant.set", "role_grants", grantKey(roleID, perm), old, allow)
	s.bump(ctx)
	return nil
}

// ListGrants returns the grant rows for a role.
func (s *Service) ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, roleID)
}

// AttachRole assigns a role to a user, idempotently.
func (s *Service) AttachRole(ctx context.Context, actor, userID uuid.UUID, roleID int64) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.AttachRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "assignment.attach", "user_roles", assignmentKey(userID, roleID), nil, roleID)
	s.bump(ctx)
	return nil
}

// DetachRole removes an assignment.
func (s *Service) DetachRole(ctx context.Context, actor, userID uuid.UUID, roleID int64) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.DetachRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "assignment.detach", "user_roles", assignmentKey(userID, roleID), roleID, nil)
	s.bump(ctx)
	return nil
}

// ListRoles returns the role definitions attached to a user.
func (s *Service) ListRoles(ctx context.Context, userID uuid.UUID) ([]RoleDefinition, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignedRoles(ctx, userID)
}

// SetOverride upserts a per-user exception. Last write wins.
func (s *Service) SetOverride(ctx context.Context, actor, userID uuid.UUID, perm catalog.Permission, allow bool) error {
	if !catalog.IsKnown(perm) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	old := s.lookupOverride(ctx, userID, perm)
	if err := s.repo.UpsertOverride(ctx, userID, perm, allow); err != nil {
		return err
	}
	s.record(ctx, actor, "override.set", "user_overrides", overrideKey(userID, perm), old, allow)
	s.bump(ctx)
	return nil
}

// ClearOverride removes the exception so resolution reverts to the pure
// role-derived outcome.
func (s *Service) ClearOverride(ctx context.Context, actor, userID uuid.UUID, perm catalog.Permission) error {
	if !catalog.IsKnown(perm) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	old := s.lookupOverride(ctx, userID, perm)
	if err := s.repo.DeleteOverride(ctx, userID, perm); err != nil {
		return err
	}
	s.record(ctx, actor, "override.clear", "user_overrides", overrideKey(userID, perm), old, nil)
	s.bump(ctx)
	return nil
}

// ListOverrides returns every override row for a user.
func (s *Service) ListOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListOverrides(ctx, userID)
}

// SnapshotFor fetches the resolution inputs for a user.
func (s *Service) SnapshotFor(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	grants, err := s.repo.ListGrantsForUser(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	overrides, err := s.repo.ListOverrides(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Grants: grants, Overrides: overrides}, nil
}

// Decide resolves one permission for the principal. The SUPER_ADMIN bypass
// is answered without touching storage.
func (s *Service) Decide(ctx context.Context, p identity.Principal, perm catalog.Permission) (bool, error) {
	if !catalog.IsKnown(perm) {
		return false, fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	if p.IsSuperAdmin() {
		return true, nil
	}
	snap, err := s.SnapshotFor(ctx, p.UserID)
	if err != nil {
		return false, err
	}
	return Resolve(p, snap, perm)
}

// EffectivePermissions returns the full resolved set for the principal,
// served from the cache when one is configured. Concurrent builds for the
// same user collapse into a single snapshot fetch.
func (s *Service) EffectivePermissions(ctx context.Context, p identity.Principal) ([]catalog.Permission, error) {
	if p.IsSuperAdmin() {
		return catalog.All(), nil
	}
	load := func(ctx context.Context) ([]catalog.Permission, error) {
		v, err, _ := s.resolveGroup.Do(p.UserID.String(), func() (any, error) {
			snap, err := s.SnapshotFor(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			return EffectiveSet(p, snap), nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]catalog.Permission), nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.FetchEffective(ctx, p.UserID, load)
}

func (s *Service) ensureUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return nil
}

// lookupGrant returns the previous allow value for audit meta, nil when the
// grant was not mentioned before.
func (s *Service) lookupGrant(ctx context.Context, roleID int64, perm catalog.Permission) *bool {
	grants, err := s.repo.ListGrants(ctx, roleID)
	if err != nil {
		return nil
	}
	for _, g := range grants {
		if g.Permission == perm {
			v := g.Allow
			return &v
		}
	}
	return nil
}

func (s *Service) lookupOverride(ctx context.Context, userID uuid.UUID, perm catalog.Permission) *bool {
	overrides, err := s.repo.ListOverrides(ctx, userID)
	if err != nil {
		return nil
	}
	for _, ov := range overrides {
		if ov.Permission == perm {
			v := ov.Allow
			return &v
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action, entity, entityID string, oldValue, newValue any) {
	_ = s.audit.Record(ctx, audit.Change{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		OldValue: oldValue,
		NewValue: newValue,
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func grantKey(roleID int64, perm catalog.Permission) string {
	return fmt.Sprintf("%d/%s", roleID, perm)
}

func assignmentKey(userID uuid.UUID, roleID int64) string {
	return fmt.Sprintf("%s/%d", userID, roleID)
}

func overrideKey(userID uuid.UUID, perm catalog.Permission) string {
	return fmt.Sprintf("%s/%s", userID, perm)
}
