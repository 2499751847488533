package gate

import (
	"net/http"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// RequireLogin only admits requests carrying a token the provider accepts.
func (g *Gate) RequireLogin() func(http.Handler) http.Handler {
	return g.guard(Requirement{Family: FamilyLogin})
}

// RequireRole admits callers holding one of roles.
func (g *Gate) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return g.guard(Requirement{Family: FamilyRole, Roles: roles})
}

// RequireFireStationUser admits callers assigned to a fire station. When
// roles is non-empty the caller must also hold one of them.
func (g *Gate) RequireFireStationUser(roles ...string) func(http.Handler) http.Handler {
	return g.guard(Requirement{Family: FamilyFireStation, Roles: roles})
}

// RequireWorkshopUser admits callers assigned to a workshop. When roles is
// non-empty the caller must also hold one of them.
func (g *Gate) RequireWorkshopUser(roles ...string) func(http.Handler) http.Handler {
	return g.guard(Requirement{Family: FamilyWorkshop, Roles: roles})
}

func (g *Gate) guard(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				g.Reject(w, r, nil, &Failure{Kind: Unauthenticated, Family: req.Family})
				return
			}
			caller, failure := g.Check(r.Context(), sess, req)
			if failure != nil {
				g.Reject(w, r, sess, failure)
				return
			}
			g.observe(req.Family, "allowed")
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}
