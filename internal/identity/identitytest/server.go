// Package identitytest provides an in-process GoTrue double for tests.
package identitytest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Keys accepted by the fake. Admin endpoints require ServiceKey.
const (
	APIKey     = "test-anon-key"
	ServiceKey = "test-service-role-key"
)

// UserID returns a stable provider id for name. The provider issues UUIDs, so
// tests name their users and let this derive the id.
func UserID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("sigve-test/"+name)).String()
}

type account struct {
	id       string
	email    string
	password string
}

// Server emulates the subset of the Supabase Auth API used by SIGVE.
type Server struct {
	*httptest.Server

	secret []byte

	mu          sync.Mutex
	accounts    map[string]account
	revoked     map[string]struct{}
	calls       map[string]int
	unavailable bool
}

// NewServer starts a fake provider that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:   []byte(uuid.NewString()),
		accounts: make(map[string]account),
		revoked:  make(map[string]struct{}),
		calls:    make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/user", s.handleUser)
	mux.HandleFunc("/auth/v1/token", s.handleToken)
	mux.HandleFunc("/auth/v1/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/v1/admin/users", s.handleAdminCreate)
	mux.HandleFunc("DELETE /auth/v1/admin/users/{id}", s.handleAdminDelete)
	s.Server = httptest.NewServer(s.counting(mux))
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account.
func (s *Server) AddUser(id, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(email)] = account{id: id, email: email, password: password}
}

// IssueToken signs an access token for the account with userID.
func (s *Server) IssueToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.id == userID {
			return s.sign(acc)
		}
	}
	return s.sign(account{id: userID})
}

// HasUser reports whether an account with id exists.
func (s *Server) HasUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.id == id {
			return true
		}
	}
	return false
}

// Revoke makes token unusable.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = struct{}{}
}

// SetUnavailable makes every endpoint answer 503.
func (s *Server) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
}

// Calls returns the number of requests received for path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests received on any path.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *Server) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		unavailable := s.unavailable
		s.mu.Unlock()
		if unavailable {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		if key := r.Header.Get("apikey"); key != APIKey && key != ServiceKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	acc, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": acc.id, "email": acc.email, "role": "authenticated"})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Query().Get("grant_type") != "password" {
		writeError(w, http.StatusBadRequest, "unsupported grant type")
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(body.Email)]
	if !ok || acc.password != body.Password {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	access := s.sign(acc)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": uuid.NewString(),
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]string{"id": acc.id, "email": acc.email, "role": "authenticated"},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.Revoke(bearer(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	if bearer(r) != ServiceKey {
		writeError(w, http.StatusForbidden, "service role required")
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(body.Email)]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, "A user with this email address has already been registered")
		return
	}
	acc := account{id: uuid.NewString(), email: body.Email, password: body.Password}
	s.accounts[strings.ToLower(body.Email)] = acc
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": acc.id, "email": acc.email, "role": "authenticated"})
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	if bearer(r) != ServiceKey {
		writeError(w, http.StatusForbidden, "service role required")
		return
	}
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, acc := range s.accounts {
		if acc.id == id {
			delete(s.accounts, key)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("{}"))
			return
		}
	}
	writeError(w, http.StatusNotFound, "User not found")
}

func (s *Server) authenticate(r *http.Request) (account, error) {
	raw := bearer(r)
	if raw == "" {
		return account{}, errors.New("missing bearer token")
	}
	s.mu.Lock()
	_, revoked := s.revoked[raw]
	s.mu.Unlock()
	if revoked {
		return account{}, errors.New("session not found")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return account{}, errors.New("invalid JWT")
	}
	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	return account{id: sub, email: email}, nil
}

func (s *Server) sign(acc account) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   acc.id,
		"email": acc.email,
		"role":  "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   uuid.NewString(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "msg": msg})
}
