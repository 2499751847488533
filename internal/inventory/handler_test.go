package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
)

func newTestRouter(t *testing.T, repo *memoryRepo, caller gate.Caller) http.Handler {
	t.Helper()
	h := NewHandler(nil, NewService(repo, nil, nil), nil, nil, gate.New(nil, nil, nil, nil, gate.Config{}), 2)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(gate.ContextWithCaller(req.Context(), caller)))
		})
	})
	r.Route("/workshop/inventory", h.MountRoutes)
	return r
}

func consumeRequest(item, qty string, jsonAccept bool) *http.Request {
	form := url.Values{"quantity": {qty}}
	req := httptest.NewRequest(http.MethodPost, "/workshop/inventory/"+item+"/consume", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if jsonAccept {
		req.Header.Set("Accept", "application/json")
	}
	return req
}

func TestConsumeEndpointJSON(t *testing.T) {
	workshop := int64(3)
	repo := newMemoryRepo(Item{ID: 1, WorkshopID: 3, Quantity: 5})
	router := newTestRouter(t, repo, gate.Caller{UserID: "u-1", Role: profiles.RoleMecanico, WorkshopID: &workshop})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, consumeRequest("1", "2", true))
	require.Equal(t, http.StatusOK, rr.Code)
	var body stockResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, stockResponse{ItemID: 1, Quantity: 3}, body)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, consumeRequest("1", "9", true))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, consumeRequest("1", "0", true))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, consumeRequest("77", "1", true))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConsumeEndpointRedirectsForms(t *testing.T) {
	workshop := int64(3)
	repo := newMemoryRepo(Item{ID: 1, WorkshopID: 3, Quantity: 5})
	router := newTestRouter(t, repo, gate.Caller{UserID: "u-1", Role: profiles.RoleMecanico, WorkshopID: &workshop})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, consumeRequest("1", "1", false))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/workshop/inventory", rr.Header().Get("Location"))
	require.Equal(t, 4, repo.items[1].Quantity)
}

func TestEndpointsRequireWorkshopCaller(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, WorkshopID: 3, Quantity: 5})
	router := newTestRouter(t, repo, gate.Caller{UserID: "u-1", Role: profiles.RoleJefeCuartel})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workshop/inventory/items.json", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, 5, repo.items[1].Quantity)
}
