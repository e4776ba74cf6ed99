package access

// DefaultPolicyConfig returns the route table of the coworking application.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		PublicRoutes: []string{
			"/",
			"/login",
			"/register",
			"/forgot-password",
			"/reset-password",
			"/verify-email",
			UnauthorizedPath,
			"/account/suspended",
			"/about",
			"/contact",
			"/pricing",
			"/spaces",
			"/blog*",
			"/events*",
			"/api/auth*",
			"/api/public*",
			"/api/webhooks/payments",
			"/static*",
			"/favicon.ico",
			"/robots.txt",
			"/healthz",
		},
		Routes: []RoutePermission{
			{Path: "/dashboard", AllowedRoles: []Role{RoleClient}, Exact: true},
			{Path: "/dashboard/admin", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/dashboard/manager", AllowedRoles: []Role{RoleManager}},
			{Path: "/dashboard/staff", AllowedRoles: []Role{RoleStaff}},
			{Path: "/dashboard/client", AllowedRoles: []Role{RoleClient}},
			{Path: "/dashboard/profile", AllowedRoles: []Role{RoleClient}},
			{Path: "/dashboard/bookings", AllowedRoles: []Role{RoleClient}},
			{Path: "/dashboard/messages", AllowedRoles: []Role{RoleClient}},
			{Path: "/dashboard/payments", AllowedRoles: []Role{RoleManager}},
			{Path: "/dashboard/accounting", AllowedRoles: []Role{RoleManager}},
			{Path: "/dashboard/spaces", AllowedRoles: []Role{RoleManager}},
			{Path: "/dashboard/schedule", AllowedRoles: []Role{RoleStaff}},
			{Path: "/dashboard/blog", AllowedRoles: []Role{RoleStaff}},
			{Path: "/dashboard/users", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/dashboard/settings", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/dashboard/security", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/api/admin", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/api/users", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/api/manager", AllowedRoles: []Role{RoleManager}},
			{Path: "/api/accounting", AllowedRoles: []Role{RoleManager}},
			{Path: "/api/staff", AllowedRoles: []Role{RoleStaff}},
			{Path: "/api/schedule", AllowedRoles: []Role{RoleStaff}},
			{Path: "/api/bookings", AllowedRoles: []Role{RoleClient}},
			{Path: "/api/payments", AllowedRoles: []Role{RoleClient}},
			{Path: "/api/messages", AllowedRoles: []Role{RoleClient}},
			{Path: "/api/profile", AllowedRoles: []Role{RoleClient}},
			{Path: "/jobs", AllowedRoles: []Role{RoleAdmin}},
			{Path: "/metrics", AllowedRoles: []Role{RoleAdmin}},
		},
		AdminUnlisted: true,
	}
}
