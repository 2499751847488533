package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/auth"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity/identitytest"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
	_ "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	sessions map[string]auth.LoginSession
}

func newStubRepo() *stubRepo {
	return &stubRepo{sessions: make(map[string]auth.LoginSession)}
}

func (s *stubRepo) CreateSession(ctx context.Context, sess auth.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubProfiles map[string]profiles.Access

func (s stubProfiles) Access(ctx context.Context, userID string) (profiles.Access, error) {
	acc, ok := s[userID]
	if !ok {
		return profiles.Access{}, profiles.ErrNotFound
	}
	return acc, nil
}

type fixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	provider *identitytest.Server
	repo     *stubRepo
}

func newFixture(t *testing.T, access stubProfiles) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	provider := identitytest.NewServer(t)
	provider.AddUser(identitytest.UserID("u-jefe"), "jefe@sigve.cl", "bomberos123")
	provider.AddUser(identitytest.UserID("u-inactive"), "old@sigve.cl", "bomberos123")
	provider.AddUser(identitytest.UserID("u-orphan"), "orphan@sigve.cl", "bomberos123")
	client := identity.NewClient(provider.URL, identitytest.APIKey, provider.Client())

	repo := newStubRepo()
	service := auth.NewService(client, access, repo, nil)
	return &fixture{
		handler:  auth.NewHandler(nil, service, templates, sessionManager, csrfManager),
		sessions: sessionManager,
		provider: provider,
		repo:     repo,
	}
}

func defaultAccess() stubProfiles {
	station := int64(7)
	return stubProfiles{
		identitytest.UserID("u-jefe"):     {UserID: identitytest.UserID("u-jefe"), RoleName: profiles.RoleJefeCuartel, FireStationID: &station, IsActive: true},
		identitytest.UserID("u-inactive"): {UserID: identitytest.UserID("u-inactive"), RoleName: profiles.RoleMecanico, IsActive: false},
	}
}

// committingWriter persists the session on the first header write, as the
// application middleware does.
type committingWriter struct {
	http.ResponseWriter
	t        *testing.T
	ctx      context.Context
	sessions *shared.SessionManager
	sess     *shared.Session
	written  bool
}

func (w *committingWriter) WriteHeader(status int) {
	if !w.written {
		w.written = true
		require.NoError(w.t, w.sessions.Commit(w.ctx, w.ResponseWriter, w.sess))
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *committingWriter) Write(data []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// run executes handler with a session loaded from sessionID. The session is
// committed when the handler writes its header, or afterwards if it never does.
func (f *fixture) run(t *testing.T, handler http.HandlerFunc, req *http.Request, sessionID string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sessionID})
	}
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	w := &committingWriter{ResponseWriter: res, t: t, ctx: ctx, sessions: f.sessions, sess: sess}
	handler(w, req.WithContext(ctx))
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return res, sess
}

func postLogin(email, password string) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, sess := f.run(t, f.handler.ShowLoginForTest, httptest.NewRequest(http.MethodGet, "/auth/login", nil), "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "<form")
	require.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, sess := f.run(t, f.handler.HandleLoginForTest, postLogin("jefe@sigve.cl", "wrongpass"), "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Correo o contraseña incorrectos.")
	require.Empty(t, sess.Get(shared.SessionAccessToken))
	require.Empty(t, f.repo.sessions)
}

func TestLoginValidationErrors(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, _ := f.run(t, f.handler.HandleLoginForTest, postLogin("not-an-email", ""), "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Ingresa un correo válido.")
	require.Zero(t, f.provider.Calls("/auth/v1/token"))
}

func TestLoginStoresTokensAndRedirectsByRole(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, sess := f.run(t, f.handler.HandleLoginForTest, postLogin("jefe@sigve.cl", "bomberos123"), "")
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/station", res.Header().Get("Location"))

	token := sess.Get(shared.SessionAccessToken)
	require.NotEmpty(t, token)
	require.NotEmpty(t, sess.Get(shared.SessionRefreshToken))
	require.Equal(t, identitytest.UserID("u-jefe"), sess.Get(shared.SessionUserID))
	require.Equal(t, identitytest.UserID("u-jefe"), sess.User())

	row, ok := f.repo.sessions[sess.ID]
	require.True(t, ok)
	require.Equal(t, identitytest.UserID("u-jefe"), row.UserID)
	require.Equal(t, auth.Fingerprint(token), row.Fingerprint)
	require.NotContains(t, row.Fingerprint, token)
	require.True(t, row.ExpiresAt.After(time.Now()))
}

func TestLoginRejectsInactiveProfile(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, sess := f.run(t, f.handler.HandleLoginForTest, postLogin("old@sigve.cl", "bomberos123"), "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Tu cuenta está desactivada.")
	require.Empty(t, sess.Get(shared.SessionAccessToken))
	require.Equal(t, 1, f.provider.Calls("/auth/v1/logout"))
}

func TestLoginWithoutProfileIsInvalidCredentials(t *testing.T) {
	f := newFixture(t, defaultAccess())

	res, _ := f.run(t, f.handler.HandleLoginForTest, postLogin("orphan@sigve.cl", "bomberos123"), "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "Correo o contraseña incorrectos.")
}

func TestLogoutRevokesAndDestroys(t *testing.T) {
	f := newFixture(t, defaultAccess())

	_, sess := f.run(t, f.handler.HandleLoginForTest, postLogin("jefe@sigve.cl", "bomberos123"), "")
	token := sess.Get(shared.SessionAccessToken)
	require.Contains(t, f.repo.sessions, sess.ID)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	res, _ := f.run(t, f.handler.HandleLogoutForTest, req, sess.ID)
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/auth/login", res.Header().Get("Location"))
	require.NotContains(t, f.repo.sessions, sess.ID)

	var cleared bool
	for _, c := range res.Result().Cookies() {
		if c.Name == f.sessions.CookieName() && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)

	client := identity.NewClient(f.provider.URL, identitytest.APIKey, f.provider.Client())
	_, err := client.GetUser(context.Background(), token)
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestHomePath(t *testing.T) {
	require.Equal(t, "/sigve", auth.HomePath(profiles.RoleAdminSIGVE))
	require.Equal(t, "/sigve", auth.HomePath(profiles.RoleSuperAdmin))
	require.Equal(t, "/station", auth.HomePath(profiles.RoleJefeCuartel))
	require.Equal(t, "/workshop", auth.HomePath(profiles.RoleMecanico))
	require.Equal(t, "/", auth.HomePath(""))
}

func TestPurgeExpired(t *testing.T) {
	repo := newStubRepo()
	now := time.Now()
	repo.sessions["old"] = auth.LoginSession{ID: "old", ExpiresAt: now.Add(-time.Minute)}
	repo.sessions["live"] = auth.LoginSession{ID: "live", ExpiresAt: now.Add(time.Hour)}
	service := auth.NewService(nil, nil, repo, nil)

	n, err := service.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Contains(t, repo.sessions, "live")
}
