package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/app"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/auth"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity/identitytest"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/observability"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
	_ "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/testing"
)

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type mapAccess map[string]profiles.Access

func (m mapAccess) Access(_ context.Context, userID string) (profiles.Access, error) {
	rec, ok := m[userID]
	if !ok {
		return profiles.Access{}, profiles.ErrNotFound
	}
	return rec, nil
}

// rosterStore backs the admin profiles page; gate lookups go through mapAccess.
type rosterStore struct {
	profiles []profiles.Profile
}

func (s rosterStore) FindForGate(context.Context, string) (profiles.GateRecord, error) {
	return profiles.GateRecord{}, profiles.ErrNotFound
}

func (s rosterStore) RoleNameByID(context.Context, int64) (string, error) {
	return "", profiles.ErrNotFound
}

func (s rosterStore) ListRoles(context.Context) ([]profiles.Role, error) {
	return []profiles.Role{{ID: 1, Name: profiles.RoleAdminSIGVE}, {ID: 3, Name: profiles.RoleJefeCuartel}}, nil
}

func (s rosterStore) List(context.Context, profiles.ListFilter) ([]profiles.Profile, error) {
	return s.profiles, nil
}

func (s rosterStore) Insert(context.Context, profiles.NewProfile) (profiles.Profile, error) {
	return profiles.Profile{}, errors.New("read only")
}

func (s rosterStore) SetActive(context.Context, string, bool) error {
	return profiles.ErrNotFound
}

type nopSessions struct{}

func (nopSessions) CreateSession(context.Context, auth.LoginSession) error { return nil }
func (nopSessions) DeleteSession(context.Context, string) error            { return nil }
func (nopSessions) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type testApp struct {
	handler  http.Handler
	provider *identitytest.Server
	cookie   *http.Cookie
}

func newTestApp(t *testing.T, access mapAccess) *testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, LoginPath: "/auth/login", UnauthorizedPath: "/unauthorized"}

	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "sigve_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	provider := identitytest.NewServer(t)
	idp := identity.NewClient(provider.URL, identitytest.APIKey, provider.Client())
	metrics := observability.NewMetrics()

	authService := auth.NewService(idp, access, nopSessions{}, logger)
	roster := rosterStore{profiles: []profiles.Profile{{ID: identitytest.UserID("chief-1"), Email: "chief@sigve.cl", FirstName: "Pedro", LastName: "Soto", IsActive: true}}}
	profileService := profiles.NewService(roster, nil, nil, logger)
	handler := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessions,
		CSRFManager:     csrf,
		Gate:            gate.New(idp, access, logger, metrics, gate.Config{}),
		AuthHandler:     auth.NewHandler(logger, authService, templates, sessions, csrf),
		ProfilesHandler: profiles.NewHandler(logger, profileService, templates, csrf),
		Metrics:         metrics,
	})
	return &testApp{handler: handler, provider: provider}
}

func (a *testApp) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "10.0.0.1:1234"
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.Name == "sigve_session" {
			if c.MaxAge < 0 {
				a.cookie = nil
			} else {
				a.cookie = c
			}
		}
	}
	return rr
}

func (a *testApp) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	page := a.do(t, http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusOK, page.Code)
	match := csrfInput.FindStringSubmatch(page.Body.String())
	require.Len(t, match, 2)
	return a.do(t, http.MethodPost, "/auth/login", url.Values{
		"csrf_token": {match[1]},
		"email":      {email},
		"password":   {password},
	})
}

func TestHealthzAndMetrics(t *testing.T) {
	a := newTestApp(t, mapAccess{})

	rr := a.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "sigve_http_requests_total")
}

func TestStaticAssetsAreCached(t *testing.T) {
	a := newTestApp(t, mapAccess{})

	rr := a.do(t, http.MethodGet, "/static/css/app.css", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestAnonymousVisitorIsSentToLogin(t *testing.T) {
	a := newTestApp(t, mapAccess{})

	for _, path := range []string{"/", "/sigve", "/station", "/workshop", "/workshop/inventory", "/admin/profiles"} {
		rr := a.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusSeeOther, rr.Code, path)
		require.Equal(t, "/auth/login", rr.Header().Get("Location"), path)
	}
	require.Zero(t, a.provider.Calls("/auth/v1/user"))
}

func TestUnauthorizedPageRenders(t *testing.T) {
	a := newTestApp(t, mapAccess{})

	rr := a.do(t, http.MethodGet, "/unauthorized", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "Acceso no autorizado")
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	a := newTestApp(t, mapAccess{})

	rr := a.do(t, http.MethodPost, "/auth/login", url.Values{"email": {"a@sigve.cl"}, "password": {"secret-pass"}})
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestFireStationChiefJourney(t *testing.T) {
	station := int64(12)
	a := newTestApp(t, mapAccess{
		identitytest.UserID("chief-1"): {UserID: identitytest.UserID("chief-1"), RoleName: profiles.RoleJefeCuartel, FireStationID: &station, IsActive: true},
	})
	a.provider.AddUser(identitytest.UserID("chief-1"), "chief@sigve.cl", "secret-pass")

	rr := a.login(t, "chief@sigve.cl", "secret-pass")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/station", rr.Header().Get("Location"))

	rr = a.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/station", rr.Header().Get("Location"))

	rr = a.do(t, http.MethodGet, "/station", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Cuartel #12")
	require.Contains(t, rr.Body.String(), "chief@sigve.cl")

	rr = a.do(t, http.MethodGet, "/workshop", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/unauthorized", rr.Header().Get("Location"))

	rr = a.do(t, http.MethodGet, "/unauthorized", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "no tiene un taller asignado")

	rr = a.do(t, http.MethodGet, "/sigve", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/unauthorized", rr.Header().Get("Location"))
}

func TestAdminAreaIsGuardedByRole(t *testing.T) {
	station := int64(12)
	a := newTestApp(t, mapAccess{
		identitytest.UserID("admin-1"): {UserID: identitytest.UserID("admin-1"), RoleName: profiles.RoleAdminSIGVE, IsActive: true},
	})
	a.provider.AddUser(identitytest.UserID("admin-1"), "admin@sigve.cl", "secret-pass")

	rr := a.login(t, "admin@sigve.cl", "secret-pass")
	require.Equal(t, "/sigve", rr.Header().Get("Location"))
	rr = a.do(t, http.MethodGet, "/admin/profiles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "chief@sigve.cl")

	chief := newTestApp(t, mapAccess{
		identitytest.UserID("chief-1"): {UserID: identitytest.UserID("chief-1"), RoleName: profiles.RoleJefeCuartel, FireStationID: &station, IsActive: true},
	})
	chief.provider.AddUser(identitytest.UserID("chief-1"), "chief@sigve.cl", "secret-pass")
	chief.login(t, "chief@sigve.cl", "secret-pass")
	rr = chief.do(t, http.MethodGet, "/admin/profiles", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/unauthorized", rr.Header().Get("Location"))
}

func TestRevokedTokenLogsOut(t *testing.T) {
	workshop := int64(4)
	a := newTestApp(t, mapAccess{
		identitytest.UserID("mech-1"): {UserID: identitytest.UserID("mech-1"), RoleName: profiles.RoleMecanico, WorkshopID: &workshop, IsActive: true},
	})
	a.provider.AddUser(identitytest.UserID("mech-1"), "mech@sigve.cl", "secret-pass")

	rr := a.login(t, "mech@sigve.cl", "secret-pass")
	require.Equal(t, "/workshop", rr.Header().Get("Location"))

	rr = a.do(t, http.MethodGet, "/workshop", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Taller #4")

	a.provider.SetUnavailable(true)
	rr = a.do(t, http.MethodGet, "/workshop", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/auth/login", rr.Header().Get("Location"))

	a.provider.SetUnavailable(false)
	rr = a.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/auth/login", rr.Header().Get("Location"))
}
