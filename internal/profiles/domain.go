package profiles

import (
	"errors"
	"time"
)

// Role catalog names. Authorization compares these by exact string equality.
const (
	RoleSuperAdmin  = "Super Admin"
	RoleAdminSIGVE  = "Admin SIGVE"
	RoleJefeCuartel = "Jefe Cuartel"
	RoleAdminTaller = "Admin Taller"
	RoleMecanico    = "Mecánico"
)

// Role is a row of the role catalog.
type Role struct {
	ID          int64
	Name        string
	Description string
}

// Profile links an identity to a role and at most one tenant.
type Profile struct {
	ID            string
	Email         string
	RUT           string
	FirstName     string
	LastName      string
	Phone         string
	RoleID        *int64
	RoleName      string
	FireStationID *int64
	WorkshopID    *int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

type roleState uint8

const (
	roleMissing roleState = iota
	roleFound
	roleIDOnly
)

// RoleLookup is the result of following profile.role_id to the role catalog.
// Exactly one of Found, FoundIDOnly or Missing describes it.
type RoleLookup struct {
	state roleState
	id    int64
	name  string
}

// RoleFound builds a lookup that already carries the role name.
func RoleFound(id int64, name string) RoleLookup {
	return RoleLookup{state: roleFound, id: id, name: name}
}

// RoleFoundIDOnly builds a lookup where the join yielded only the foreign key.
func RoleFoundIDOnly(id int64) RoleLookup {
	return RoleLookup{state: roleIDOnly, id: id}
}

// RoleMissing builds a lookup for a profile without a role.
func RoleMissing() RoleLookup {
	return RoleLookup{}
}

// Name returns the resolved role name.
func (l RoleLookup) Name() (string, bool) {
	return l.name, l.state == roleFound
}

// PendingID returns the role id that still needs a direct lookup.
func (l RoleLookup) PendingID() (int64, bool) {
	return l.id, l.state == roleIDOnly
}

// IsMissing reports whether the profile has no role reference.
func (l RoleLookup) IsMissing() bool {
	return l.state == roleMissing
}

func (l RoleLookup) String() string {
	switch l.state {
	case roleFound:
		return "found(" + l.name + ")"
	case roleIDOnly:
		return "id-only"
	default:
		return "missing"
	}
}

// GateRecord is the projection of a profile read on every authorization.
type GateRecord struct {
	ID            string
	Role          RoleLookup
	FireStationID *int64
	WorkshopID    *int64
	IsActive      bool
}

// Access is a GateRecord with its role name resolved.
type Access struct {
	UserID        string
	RoleName      string
	FireStationID *int64
	WorkshopID    *int64
	IsActive      bool
}

// ListFilter narrows profile listings.
type ListFilter struct {
	FireStationID int64
	WorkshopID    int64
	OnlyActive    bool
	Limit         int
}

// ProvisionInput is the admin form for creating a user.
type ProvisionInput struct {
	Email         string `validate:"required,email,max=254"`
	Password      string `validate:"required,min=8,max=72"`
	RUT           string `validate:"required,min=8,max=12"`
	FirstName     string `validate:"required,max=100"`
	LastName      string `validate:"required,max=100"`
	Phone         string `validate:"omitempty,max=20"`
	RoleID        int64  `validate:"required,gt=0"`
	FireStationID *int64 `validate:"omitempty,gt=0"`
	WorkshopID    *int64 `validate:"omitempty,gt=0"`
}

// NewProfile is the row inserted by the repository.
type NewProfile struct {
	ID            string
	Email         string
	RUT           string
	FirstName     string
	LastName      string
	Phone         string
	RoleID        int64
	FireStationID *int64
	WorkshopID    *int64
}

var (
	// ErrNotFound indicates a missing profile or role.
	ErrNotFound = errors.New("profiles: not found")
	// ErrTenantConflict indicates both tenant references were supplied.
	ErrTenantConflict = errors.New("profiles: a profile belongs to a fire station or a workshop, not both")
)
