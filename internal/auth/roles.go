package auth

// Proctor role constants.
const (
	RoleViewer  = "viewer"
	RoleProctor = "proctor"
	RoleAdmin   = "admin"
)

// AllProctorRoles returns all valid proctor-realm roles.
func AllProctorRoles() []string {
	return []string{RoleViewer, RoleProctor, RoleAdmin}
}

// WriteRoles returns roles that can adjudicate and change exam state.
func WriteRoles() []string {
	return []string{RoleProctor, RoleAdmin}
}

// ValidRole reports whether role is a proctor-realm role.
func ValidRole(role string) bool {
	for _, r := range AllProctorRoles() {
		if r == role {
			return true
		}
	}
	return false
}
