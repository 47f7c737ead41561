package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin can do everything, including manual status overrides.
	RoleAdmin = "admin"
	// RoleOperator starts and cancels campaigns.
	RoleOperator = "operator"
	// RoleViewer has read-only access to campaigns, calls and reports.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
