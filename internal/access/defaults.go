package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
)

// DefaultRole is one entry of the versioned default bundle applied at
// deploy time.
type DefaultRole struct {
	Name        string
	Description string
	Grants      map[catalog.Permission]bool
}

// DefaultsVersion identifies the current bundle revision.
const DefaultsVersion = 2

// DefaultRoles returns the bundle of roles every deployment carries.
// Re-applying it converges: every write below is a keyed idempotent upsert.
func DefaultRoles() []DefaultRole {
	return []DefaultRole{
		{
			Name:        "Support",
			Description: "Customer support staff",
			Grants: map[catalog.Permission]bool{
				catalog.ViewUsersAll:    true,
				catalog.ViewListingsAll: true,
				catalog.SuspendUsers:    false,
			},
		},
		{
			Name:        "Listings Ops",
			Description: "Listing review and moderation",
			Grants: map[catalog.Permission]bool{
				catalog.ApproveListings: true,
				catalog.ManageListings:  true,
				catalog.ViewListingsAll: true,
				catalog.FeatureListings: true,
			},
		},
		{
			Name:        "Finance",
			Description: "Billing, subscriptions and reporting",
			Grants: map[catalog.Permission]bool{
				catalog.ViewTransactionsAll: true,
				catalog.ManageSubscriptions: true,
				catalog.ExportData:          true,
				catalog.RefundPayments:      false,
			},
		},
		{
			Name:        "Content",
			Description: "Blog and editorial team",
			Grants: map[catalog.Permission]bool{
				catalog.ManageBlog:  true,
				catalog.PublishBlog: true,
			},
		},
		{
			Name:        "Trust & Safety",
			Description: "User moderation and message review",
			Grants: map[catalog.Permission]bool{
				catalog.SuspendUsers:     true,
				catalog.ModerateMessages: true,
				catalog.ViewUsersAll:     true,
			},
		},
		{
			Name:        "Access Admin",
			Description: "Administers roles, grants and overrides",
			Grants: map[catalog.Permission]bool{
				catalog.ViewRoleDefinitions: true,
				catalog.EditRoleDefinitions: true,
				catalog.ViewAuditLog:        true,
				catalog.ManageUsers:         true,
			},
		},
	}
}

// ApplyDefaults upserts the default bundle through the service. Safe to run
// repeatedly and concurrently with live traffic.
func ApplyDefaults(ctx context.Context, svc *Service, actor uuid.UUID) error {
	for _, def := range DefaultRoles() {
		role, err := svc.UpsertRole(ctx, actor, def.Name, def.Description)
		if err != nil {
			return fmt.Errorf("access: apply default role %q: %w", def.Name, err)
		}
		for _, perm := range catalog.All() {
			allow, mentioned := def.Grants[perm]
			if !mentioned {
				continue
			}
			if err := svc.SetGrant(ctx, actor, role.ID, perm, allow); err != nil {
				return fmt.Errorf("access: apply default grant %s/%s: %w", def.Name, perm, err)
			}
		}
	}
	return nil
}
