package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/audit/http"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/auth"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/observability"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/orders"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/jobs"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Gate             *gate.Gate
	AuthHandler      *auth.Handler
	ProfilesHandler  *profiles.Handler
	InventoryHandler *inventory.Handler
	OrdersHandler    *orders.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with SIGVE defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	pages := pageRenderer{logger: params.Logger, templates: params.Templates, csrf: params.CSRFManager}
	g := params.Gate

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.Get(shared.SessionAccessToken) == "" {
			http.Redirect(w, r, loginPath(params.Config), http.StatusSeeOther)
			return
		}
		home := auth.HomePath(sess.Get(shared.SessionUserRole))
		if home == "/" {
			// Unknown roles have no home; the guards decide on the next hop.
			home = unauthorizedPath(params.Config)
		}
		http.Redirect(w, r, home, http.StatusSeeOther)
	})

	r.Get("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
		pages.render(w, r, http.StatusForbidden, "pages/unauthorized.html", "Acceso no autorizado", nil)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.With(g.RequireRole(profiles.RoleAdminSIGVE)).Get("/sigve", func(w http.ResponseWriter, r *http.Request) {
		pages.render(w, r, http.StatusOK, "pages/home_sigve.html", "Panel SIGVE", nil)
	})

	r.With(g.RequireFireStationUser(profiles.RoleJefeCuartel)).Get("/station", func(w http.ResponseWriter, r *http.Request) {
		caller, _ := gate.CallerFromContext(r.Context())
		stationID, _ := caller.FireStation()
		pages.render(w, r, http.StatusOK, "pages/home_station.html", "Cuartel", map[string]any{"FireStationID": stationID})
	})

	r.Route("/workshop", func(r chi.Router) {
		r.Use(g.RequireWorkshopUser(profiles.RoleAdminTaller, profiles.RoleMecanico))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := gate.CallerFromContext(r.Context())
			workshopID, _ := caller.Workshop()
			pages.render(w, r, http.StatusOK, "pages/home_workshop.html", "Taller", map[string]any{"WorkshopID": workshopID})
		})
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.OrdersHandler != nil {
			r.Route("/orders", params.OrdersHandler.MountRoutes)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(g.RequireRole(profiles.RoleAdminSIGVE))
		if params.ProfilesHandler != nil {
			r.Route("/profiles", params.ProfilesHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

type pageRenderer struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

func (p pageRenderer) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	var (
		csrfToken string
		flash     *shared.FlashMessage
	)
	if sess != nil {
		csrfToken, _ = p.csrf.EnsureToken(r.Context(), sess)
		flash = sess.PopFlash()
	}
	td := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if caller, ok := gate.CallerFromContext(r.Context()); ok {
		td.User = &view.UserInfo{ID: caller.UserID, Email: caller.Email, Role: caller.Role}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.templates.Render(w, name, td); err != nil {
		p.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}

func loginPath(cfg *Config) string {
	if cfg != nil && cfg.LoginPath != "" {
		return cfg.LoginPath
	}
	return "/auth/login"
}

func unauthorizedPath(cfg *Config) string {
	if cfg != nil && cfg.UnauthorizedPath != "" {
		return cfg.UnauthorizedPath
	}
	return "/unauthorized"
}
