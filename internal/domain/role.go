package domain

// Roles carried in access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	// RoleService is held by upstream services that raise triggers on behalf
	// of any user.
	RoleService = "service"
)
