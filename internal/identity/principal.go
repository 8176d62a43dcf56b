// Package identity normalises the authenticated actor at the session
// boundary so downstream code never inspects raw session state.
package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// CoarseRole is the single broad label attached directly to a user. It is
// used for routing and the SUPER_ADMIN bypass, distinct from the
// fine-grained role definitions managed by the access package.
type CoarseRole string

const (
	RoleRenter     CoarseRole = "RENTER"
	RoleLister     CoarseRole = "LISTER"
	RoleAgent      CoarseRole = "AGENT"
	RoleAdmin      CoarseRole = "ADMIN"
	RoleSuperAdmin CoarseRole = "SUPER_ADMIN"
)

// ParseCoarseRole maps a stored role label to a CoarseRole. Unknown labels
// collapse to RENTER, the least privileged value.
func ParseCoarseRole(raw string) CoarseRole {
	switch CoarseRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleLister:
		return RoleLister
	case RoleAgent:
		return RoleAgent
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleRenter
	}
}

// Principal is the normalised authenticated actor. It is produced once per
// request from the verified session and trusted from there on.
type Principal struct {
	UserID     uuid.UUID
	CoarseRole CoarseRole
}

// IsSuperAdmin reports whether the principal holds the bypass role.
func (p Principal) IsSuperAdmin() bool {
	return p.CoarseRole == RoleSuperAdmin
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
