package access

import (
	"github.com/nyumbani/nyumbani-access/internal/catalog"
	"github.com/nyumbani/nyumbani-access/internal/identity"
)

// Snapshot is the read-only state a resolution runs over: every grant across
// the user's attached roles plus the user's overrides. The service fetches a
// fresh snapshot per call, so resolution itself holds no state and is safe
// for concurrent use.
type Snapshot struct {
	Grants    []PermissionGrant
	Overrides []UserOverride
}

// Resolve decides a single permission for the principal.
//
// Order is fixed: the SUPER_ADMIN bypass short-circuits everything, then an
// explicit override wins, then the most permissive grant across attached
// roles, and finally deny by default. A user with no roles and no overrides
// resolves every tag to deny without error.
func Resolve(p identity.Principal, snap Snapshot, perm catalog.Permission) (bool, error) {
	if !catalog.IsKnown(perm) {
		return false, ErrUnknownPermission
	}
	if p.IsSuperAdmin() {
		return true, nil
	}
	for _, ov := range snap.Overrides {
		if ov.Permission == perm {
			return ov.Allow, nil
		}
	}
	for _, g := range snap.Grants {
		if g.Permission == perm && g.Allow {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveSet computes the full resolved permission set for the principal.
// SUPER_ADMIN substitutes the entire catalog. The result is always a
// concrete, enumerable set in catalog order; the "*" shorthand exists only
// at the HTTP boundary.
func EffectiveSet(p identity.Principal, snap Snapshot) []catalog.Permission {
	if p.IsSuperAdmin() {
		return catalog.All()
	}

	allowed := make(map[catalog.Permission]bool)
	for _, g := range snap.Grants {
		if g.Allow {
			allowed[g.Permission] = true
		}
	}
	for _, ov := range snap.Overrides {
		if ov.Allow {
			allowed[ov.Permission] = true
		} else {
			delete(allowed, ov.Permission)
		}
	}

	out := make([]catalog.Permission, 0, len(allowed))
	for _, perm := range catalog.All() {
		if allowed[perm] {
			out = append(out, perm)
		}
	}
	return out
}
