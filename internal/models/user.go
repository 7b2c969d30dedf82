package models

// Role names mirror the seeded application roles. Admin is never
// client-assignable.
const (
	RoleAdmin       = "Admin"
	RoleBasicUser   = "BasicUser"
	RolePremiumUser = "PremiumUser"
)

// PublicRoles are the roles a client may request at registration.
var PublicRoles = []string{RoleBasicUser, RolePremiumUser}

// IsPublicRole reports whether a role may be self-assigned at registration.
func IsPublicRole(role string) bool {
	for _, r := range PublicRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal is an authenticated identity. Credential material (password
// hashes, lockout counters) lives in the external identity service and is
// never present here.
type Principal struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

// ExternalLogin links a federated provider subject to a local principal.
type ExternalLogin struct {
	Provider  string `json:"provider"`
	SubjectID string `json:"subject_id"`
	UserID    string `json:"user_id"`
}
