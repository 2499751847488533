package auth

import (
	"time"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
)

// LoginSession is the audit row kept for every browser login. The access
// token itself is never stored, only its fingerprint.
type LoginSession struct {
	ID          string
	UserID      string
	Fingerprint string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IP          string
	UserAgent   string
}

// LoginResult is a successful sign in.
type LoginResult struct {
	Tokens identity.Tokens
	Access profiles.Access
}

// HomePath returns the landing page for a role.
func HomePath(role string) string {
	switch role {
	case profiles.RoleSuperAdmin, profiles.RoleAdminSIGVE:
		return "/sigve"
	case profiles.RoleJefeCuartel:
		return "/station"
	case profiles.RoleAdminTaller, profiles.RoleMecanico:
		return "/workshop"
	default:
		return "/"
	}
}
