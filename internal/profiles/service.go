package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// Store defines persistence operations for profiles.
type Store interface {
	FindForGate(ctx context.Context, id string) (GateRecord, error)
	RoleNameByID(ctx context.Context, id int64) (string, error)
	ListRoles(ctx context.Context) ([]Role, error)
	List(ctx context.Context, filter ListFilter) ([]Profile, error)
	Insert(ctx context.Context, in NewProfile) (Profile, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// IdentityAdmin creates and removes provider accounts.
type IdentityAdmin interface {
	CreateUser(ctx context.Context, email, password string) (identity.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// ValidationError carries per-field messages for form rendering.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "profiles: invalid input: " + strings.Join(keys, ", ")
}

// UserMessage implements the user-safe message contract.
func (e *ValidationError) UserMessage() string {
	return "Revisa los campos marcados."
}

// Service wraps profile rules.
type Service struct {
	store     Store
	identity  IdentityAdmin
	audit     shared.AuditRecorder
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService constructs a Service. identity may be nil when provisioning is
// not available.
func NewService(store Store, identity IdentityAdmin, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, identity: identity, audit: audit, logger: logger, validator: validator.New()}
}

// Access loads the profile for userID and resolves its role name. A profile
// whose join returned only the role id gets a second lookup by id; a
// dangling id resolves to an empty name.
func (s *Service) Access(ctx context.Context, userID string) (Access, error) {
	rec, err := s.store.FindForGate(ctx, userID)
	if err != nil {
		return Access{}, err
	}
	name, err := s.ResolveRole(ctx, rec.Role)
	if err != nil {
		return Access{}, err
	}
	return Access{
		UserID:        rec.ID,
		RoleName:      name,
		FireStationID: rec.FireStationID,
		WorkshopID:    rec.WorkshopID,
		IsActive:      rec.IsActive,
	}, nil
}

// ResolveRole turns a RoleLookup into a role name.
func (s *Service) ResolveRole(ctx context.Context, lookup RoleLookup) (string, error) {
	if name, ok := lookup.Name(); ok {
		return name, nil
	}
	id, ok := lookup.PendingID()
	if !ok {
		return "", nil
	}
	name, err := s.store.RoleNameByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

// Roles lists the role catalog.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// List returns profiles matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Profile, error) {
	return s.store.List(ctx, filter)
}

// Provision creates the provider account and its profile. If the profile
// insert fails the provider account is removed again.
func (s *Service) Provision(ctx context.Context, actorID string, in ProvisionInput) (Profile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.RUT = normalizeRUT(in.RUT)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := s.validate(in); err != nil {
		return Profile{}, err
	}
	if s.identity == nil {
		return Profile{}, identity.ErrAdminDisabled
	}

	user, err := s.identity.CreateUser(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return Profile{}, &ValidationError{Fields: map[string]string{"email": "Ya existe un usuario con este correo."}}
		}
		return Profile{}, fmt.Errorf("profiles: create identity: %w", err)
	}

	profile, err := s.store.Insert(ctx, NewProfile{
		ID:            user.ID,
		Email:         in.Email,
		RUT:           in.RUT,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Phone:         in.Phone,
		RoleID:        in.RoleID,
		FireStationID: in.FireStationID,
		WorkshopID:    in.WorkshopID,
	})
	if err != nil {
		if delErr := s.identity.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("rollback provider account", slog.String("user_id", user.ID), slog.Any("error", delErr))
		}
		return Profile{}, err
	}

	s.record(ctx, actorID, "profile.provision", profile.ID, map[string]any{"role_id": in.RoleID})
	return profile, nil
}

// Deactivate soft-disables a profile.
func (s *Service) Deactivate(ctx context.Context, actorID, id string) error {
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actorID, "profile.deactivate", id, nil)
	return nil
}

// Activate re-enables a profile.
func (s *Service) Activate(ctx context.Context, actorID, id string) error {
	if err := s.store.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.record(ctx, actorID, "profile.activate", id, nil)
	return nil
}

func (s *Service) validate(in ProvisionInput) error {
	fields := make(map[string]string)
	if err := s.validator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fieldName(fe.Field())] = validationMessage(fe)
		}
	}
	if in.FireStationID != nil && in.WorkshopID != nil {
		fields["tenant"] = ErrTenantConflict.Error()
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user_profile", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeRUT(rut string) string {
	rut = strings.ToUpper(strings.TrimSpace(rut))
	return strings.NewReplacer(".", "", " ", "").Replace(rut)
}

func fieldName(structField string) string {
	switch structField {
	case "RUT":
		return "rut"
	case "FirstName":
		return "first_name"
	case "LastName":
		return "last_name"
	case "RoleID":
		return "role_id"
	case "FireStationID":
		return "fire_station_id"
	case "WorkshopID":
		return "workshop_id"
	default:
		return strings.ToLower(structField)
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Este campo es obligatorio."
	case "email":
		return "Ingresa un correo válido."
	case "min":
		return fmt.Sprintf("Debe tener al menos %s caracteres.", fe.Param())
	case "max":
		return fmt.Sprintf("Debe tener como máximo %s caracteres.", fe.Param())
	default:
		return "Valor inválido."
	}
}
