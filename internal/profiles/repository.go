package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/unicode/norm"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/dberr"
)

// Constraints maps user_profile constraints to form fields.
var Constraints = dberr.Registry{
	"user_profile_email_key":            {Name: "email", Message: "Ya existe un usuario con este correo."},
	"user_profile_rut_key":              {Name: "rut", Message: "Ya existe un usuario con este RUT."},
	"user_profile_single_tenant":        {Name: "tenant", Message: "Un usuario pertenece a un cuartel o a un taller, no a ambos."},
	"user_profile_role_id_fkey":         {Name: "role_id", Message: "El rol seleccionado no existe."},
	"user_profile_fire_station_id_fkey": {Name: "fire_station_id", Message: "El cuartel seleccionado no existe."},
	"user_profile_workshop_id_fkey":     {Name: "workshop_id", Message: "El taller seleccionado no existe."},
}

// Repository persists profiles in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const findForGateSQL = `SELECT p.id::text, p.role_id, r.name, p.fire_station_id, p.workshop_id, p.is_active
FROM user_profile p
LEFT JOIN role r ON r.id = p.role_id
WHERE p.id = $1`

// FindForGate reads the authorization projection of a profile.
func (r *Repository) FindForGate(ctx context.Context, id string) (GateRecord, error) {
	var (
		rec      GateRecord
		roleID   pgtype.Int8
		roleName pgtype.Text
		station  pgtype.Int8
		workshop pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, findForGateSQL, id).Scan(&rec.ID, &roleID, &roleName, &station, &workshop, &rec.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GateRecord{}, ErrNotFound
		}
		return GateRecord{}, fmt.Errorf("profiles: find for gate: %w", err)
	}
	rec.Role = roleLookup(roleID, roleName)
	rec.FireStationID = int8Ptr(station)
	rec.WorkshopID = int8Ptr(workshop)
	return rec, nil
}

// RoleNameByID reads a role name directly from the catalog.
func (r *Repository) RoleNameByID(ctx context.Context, id int64) (string, error) {
	var name string
	if err := r.pool.QueryRow(ctx, `SELECT name FROM role WHERE id = $1`, id).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("profiles: role name: %w", err)
	}
	return canonicalRole(name), nil
}

// ListRoles returns the role catalog ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM role ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("profiles: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		role.Name = canonicalRole(role.Name)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

const listSQL = `SELECT p.id::text, p.email, COALESCE(p.rut, ''), p.first_name, p.last_name, COALESCE(p.phone, ''),
       p.role_id, COALESCE(r.name, ''), p.fire_station_id, p.workshop_id, p.is_active, p.created_at, p.updated_at
FROM user_profile p
LEFT JOIN role r ON r.id = p.role_id
WHERE ($1::bigint = 0 OR p.fire_station_id = $1)
  AND ($2::bigint = 0 OR p.workshop_id = $2)
  AND (NOT $3 OR p.is_active)
ORDER BY p.last_name, p.first_name
LIMIT $4`

// List returns profiles matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Profile, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, listSQL, filter.FireStationID, filter.WorkshopID, filter.OnlyActive, limit)
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var (
			p        Profile
			roleID   pgtype.Int8
			station  pgtype.Int8
			workshop pgtype.Int8
			created  pgtype.Timestamptz
			updated  pgtype.Timestamptz
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.RUT, &p.FirstName, &p.LastName, &p.Phone,
			&roleID, &p.RoleName, &station, &workshop, &p.IsActive, &created, &updated); err != nil {
			return nil, err
		}
		p.RoleID = int8Ptr(roleID)
		p.RoleName = canonicalRole(p.RoleName)
		p.FireStationID = int8Ptr(station)
		p.WorkshopID = int8Ptr(workshop)
		p.CreatedAt = created.Time
		p.UpdatedAt = updated.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// Insert creates a profile row.
func (r *Repository) Insert(ctx context.Context, in NewProfile) (Profile, error) {
	const q = `INSERT INTO user_profile (id, email, rut, first_name, last_name, phone, role_id, fire_station_id, workshop_id, is_active)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, TRUE)
RETURNING created_at, updated_at`
	var created, updated pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, q, in.ID, in.Email, in.RUT, in.FirstName, in.LastName, in.Phone,
		in.RoleID, in.FireStationID, in.WorkshopID).Scan(&created, &updated)
	if err != nil {
		return Profile{}, Constraints.Classify(err)
	}
	roleID := in.RoleID
	return Profile{
		ID:            in.ID,
		Email:         in.Email,
		RUT:           in.RUT,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Phone:         in.Phone,
		RoleID:        &roleID,
		FireStationID: in.FireStationID,
		WorkshopID:    in.WorkshopID,
		IsActive:      true,
		CreatedAt:     created.Time,
		UpdatedAt:     updated.Time,
	}, nil
}

// SetActive flips the soft-deactivation flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_profile SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("profiles: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func roleLookup(id pgtype.Int8, name pgtype.Text) RoleLookup {
	switch {
	case !id.Valid:
		return RoleMissing()
	case name.Valid && name.String != "":
		return RoleFound(id.Int64, canonicalRole(name.String))
	default:
		return RoleFoundIDOnly(id.Int64)
	}
}

// canonicalRole composes role names to NFC so that "Mecánico" matches no
// matter how the accent was stored.
func canonicalRole(name string) string {
	return norm.NFC.String(name)
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

var _ Store = (*Repository)(nil)
