// Package catalog defines the closed set of permission tags the access
// service reasons over. The catalog is compiled in: adding a tag is a
// deploy, and removing one must pass the integrity check first.
package catalog

// Permission is an atomic capability tag. Tags are case-sensitive and
// degrade to plain strings only at the wire boundary.
type Permission string

// Version identifies the current catalog revision. Bumped whenever a tag
// is added or retired.
const Version = 4

// User and account administration.
const (
	ManageUsers   Permission = "MANAGE_USERS"
	SuspendUsers  Permission = "SUSPEND_USERS"
	ViewUsersAll  Permission = "VIEW_USERS_ALL"
	ImpersonateUI Permission = "IMPERSONATE_USER"
)

// Listings.
const (
	ApproveListings Permission = "APPROVE_LISTINGS"
	ManageListings  Permission = "MANAGE_LISTINGS"
	ViewListingsAll Permission = "VIEW_LISTINGS_ALL"
	FeatureListings Permission = "FEATURE_LISTINGS"
)

// Billing and reporting.
const (
	ViewTransactionsAll Permission = "VIEW_TRANSACTIONS_ALL"
	ManageSubscriptions Permission = "MANAGE_SUBSCRIPTIONS"
	RefundPayments      Permission = "REFUND_PAYMENTS"
	ExportData          Permission = "EXPORT_DATA"
)

// Content and messaging.
const (
	ManageBlog       Permission = "MANAGE_BLOG"
	PublishBlog      Permission = "PUBLISH_BLOG"
	ModerateMessages Permission = "MODERATE_MESSAGES"
)

// Access-control administration. These gate the service's own surface.
const (
	ViewRoleDefinitions Permission = "VIEW_ROLE_DEFINITIONS"
	EditRoleDefinitions Permission = "EDIT_ROLE_DEFINITIONS"
	ViewAuditLog        Permission = "VIEW_AUDIT_LOG"
)

var all = []Permission{
	ManageUsers,
	SuspendUsers,
	ViewUsersAll,
	ImpersonateUI,
	ApproveListings,
	ManageListings,
	ViewListingsAll,
	FeatureListings,
	ViewTransactionsAll,
	ManageSubscriptions,
	RefundPayments,
	ExportData,
	ManageBlog,
	PublishBlog,
	ModerateMessages,
	ViewRoleDefinitions,
	EditRoleDefinitions,
	ViewAuditLog,
}

var known = buildIndex()

func buildIndex() map[Permission]struct{} {
	idx := make(map[Permission]struct{}, len(all))
	for _, p := range all {
		idx[p] = struct{}{}
	}
	return idx
}

// IsKnown reports whether the tag belongs to the current catalog.
func IsKnown(p Permission) bool {
	_, ok := known[p]
	return ok
}

// All returns every catalog permission in declaration order.
func All() []Permission {
	out := make([]Permission, len(all))
	copy(out, all)
	return out
}

// Size returns the number of tags in the catalog.
func Size() int {
	return len(all)
}
