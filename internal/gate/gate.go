// Package gate authenticates the session against the identity provider and
// authorizes the caller by role and tenant before a handler runs.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// IdentityProvider validates access tokens.
type IdentityProvider interface {
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
}

// AccessResolver loads the profile facts needed for authorization.
type AccessResolver interface {
	Access(ctx context.Context, userID string) (profiles.Access, error)
}

// DecisionRecorder counts gate decisions.
type DecisionRecorder interface {
	ObserveGateDecision(family, outcome string)
}

// Requirement describes what a guard demands of the caller.
type Requirement struct {
	Family Family
	Roles  []string
}

// Config tunes redirect targets and failure handling.
type Config struct {
	LoginPath        string
	UnauthorizedPath string
	Policy           Policy
	// SuperRoles are accepted by every role check.
	SuperRoles []string
}

// Gate runs the authentication and authorization pipeline.
type Gate struct {
	identity IdentityProvider
	access   AccessResolver
	logger   *slog.Logger
	metrics  DecisionRecorder
	cfg      Config
}

// New constructs a Gate. metrics may be nil.
func New(provider IdentityProvider, access AccessResolver, logger *slog.Logger, metrics DecisionRecorder, cfg Config) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/login"
	}
	if cfg.UnauthorizedPath == "" {
		cfg.UnauthorizedPath = "/unauthorized"
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.SuperRoles == nil {
		cfg.SuperRoles = []string{profiles.RoleSuperAdmin}
	}
	return &Gate{identity: provider, access: access, logger: logger, metrics: metrics, cfg: cfg}
}

// Authenticate validates the access token kept in sess. A session without a
// token fails without contacting the provider.
func (g *Gate) Authenticate(ctx context.Context, sess *shared.Session) (identity.User, *Failure) {
	token := ""
	if sess != nil {
		token = sess.Get(shared.SessionAccessToken)
	}
	if token == "" {
		return identity.User{}, &Failure{Kind: Unauthenticated, Family: FamilyLogin}
	}
	user, err := g.identity.GetUser(ctx, token)
	switch {
	case err == nil && user.ID != "":
		return user, nil
	case err == nil:
		return identity.User{}, &Failure{Kind: Unauthenticated, Family: FamilyLogin, Err: identity.ErrInvalidToken}
	case identity.IsProviderError(err):
		return identity.User{}, &Failure{Kind: ProviderError, Family: FamilyLogin, Err: err}
	default:
		return identity.User{}, &Failure{Kind: Unauthenticated, Family: FamilyLogin, Err: err}
	}
}

// Authorize checks the profile of user against req. A deactivated profile is
// refused before anything else. Tenant families test the tenant before the
// role so an unassigned profile always reports NoTenantAssigned.
func (g *Gate) Authorize(ctx context.Context, user identity.User, req Requirement) (Caller, *Failure) {
	caller := Caller{UserID: user.ID, Email: user.Email}
	if req.Family == FamilyLogin {
		return caller, nil
	}
	fail := func(kind FailureKind, role string, err error) (Caller, *Failure) {
		return Caller{}, &Failure{Kind: kind, Family: req.Family, UserID: user.ID, Role: role, Required: req.Roles, Err: err}
	}

	access, err := g.access.Access(ctx, user.ID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return fail(ProfileNotFound, "", err)
		}
		return fail(StorageError, "", err)
	}
	if !access.IsActive {
		return fail(ProfileInactive, access.RoleName, shared.ErrInactiveProfile)
	}
	caller.Role = access.RoleName

	switch req.Family {
	case FamilyFireStation:
		if access.FireStationID == nil {
			return fail(NoTenantAssigned, access.RoleName, nil)
		}
		caller.FireStationID = access.FireStationID
	case FamilyWorkshop:
		if access.WorkshopID == nil {
			return fail(NoTenantAssigned, access.RoleName, nil)
		}
		caller.WorkshopID = access.WorkshopID
	}

	if !g.roleAllowed(access.RoleName, req.Roles) {
		return fail(RoleMismatch, access.RoleName, nil)
	}
	return caller, nil
}

// Check runs the full pipeline and, on success, records the resolved facts
// in sess.
func (g *Gate) Check(ctx context.Context, sess *shared.Session, req Requirement) (Caller, *Failure) {
	user, failure := g.Authenticate(ctx, sess)
	if failure != nil {
		failure.Family = req.Family
		return Caller{}, failure
	}
	caller, failure := g.Authorize(ctx, user, req)
	if failure != nil {
		return Caller{}, failure
	}
	sess.SetUser(caller.UserID)
	sess.Set(shared.SessionUserID, caller.UserID)
	if req.Family != FamilyLogin {
		sess.Set(shared.SessionUserRole, caller.Role)
	}
	if id, ok := caller.FireStation(); ok {
		sess.SetInt64(shared.SessionFireStationID, id)
	}
	if id, ok := caller.Workshop(); ok {
		sess.SetInt64(shared.SessionWorkshopID, id)
	}
	return caller, nil
}

// Reject applies the configured outcome for failure and writes the redirect.
func (g *Gate) Reject(w http.ResponseWriter, r *http.Request, sess *shared.Session, failure *Failure) {
	outcome := g.cfg.Policy.Outcome(failure.Family, failure.Kind)
	g.logFailure(r, failure, outcome)
	g.observe(failure.Family, string(failure.Kind))

	if sess != nil {
		if outcome.ClearSession {
			sess.Clear()
		}
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: failure.Message()})
	}
	http.Redirect(w, r, g.path(outcome.Redirect), http.StatusSeeOther)
}

func (g *Gate) roleAllowed(role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if role == "" {
		return false
	}
	return slices.Contains(required, role) || slices.Contains(g.cfg.SuperRoles, role)
}

func (g *Gate) path(target Target) string {
	if target == TargetUnauthorized {
		return g.cfg.UnauthorizedPath
	}
	return g.cfg.LoginPath
}

func (g *Gate) observe(family Family, outcome string) {
	if g.metrics != nil {
		g.metrics.ObserveGateDecision(string(family), outcome)
	}
}

func (g *Gate) logFailure(r *http.Request, f *Failure, outcome Outcome) {
	attrs := []any{
		slog.String("family", string(f.Family)),
		slog.String("kind", string(f.Kind)),
		slog.String("path", r.URL.Path),
		slog.Bool("clear_session", outcome.ClearSession),
	}
	if f.UserID != "" {
		attrs = append(attrs, slog.String("user_id", f.UserID))
	}
	if f.Role != "" {
		attrs = append(attrs, slog.String("role", f.Role))
	}
	if len(f.Required) > 0 {
		attrs = append(attrs, slog.Any("required", f.Required))
	}
	if f.Err != nil {
		attrs = append(attrs, slog.Any("error", f.Err))
	}
	level := slog.LevelWarn
	if f.Kind == ProviderError || f.Kind == StorageError {
		level = slog.LevelError
	}
	g.logger.Log(r.Context(), level, "gate rejected request", attrs...)
}
