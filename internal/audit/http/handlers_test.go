package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/audit"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newAuditRouter(t *testing.T, service *stubTimelineService) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, shared.NewCSRFManager("secret"))
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := &shared.Session{ID: "s1"}
			sess.SetUser("admin-1")
			ctx := shared.ContextWithSession(r.Context(), sess)
			ctx = gate.ContextWithCaller(ctx, gate.Caller{UserID: "admin-1", Email: "admin@sigve.cl", Role: "Admin SIGVE"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/admin/audit", handler.MountRoutes)
	return r
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "mechanic-7", Action: "inventory.consume", Entity: "inventory_item", EntityID: "1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/?from=2024-03-01&to=2024-03-15&entity=inventory_item", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "mechanic-7")
	require.Contains(t, rr.Body.String(), "inventory.consume")
	require.Equal(t, "2024-03-01", service.lastFilters.From.Format("2006-01-02"))
	require.Equal(t, "inventory_item", service.lastFilters.Entity)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2024-03-08", service.lastFilters.From.Format("2006-01-02"))
	require.Equal(t, "2024-03-15", service.lastFilters.To.Format("2006-01-02"))
	require.Equal(t, 1, service.lastFilters.Page)
	require.Zero(t, service.lastFilters.PageSize)
}

func TestTimelinePassesPageSizeToService(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/?page=3&page_size=500", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 3, service.lastFilters.Page)
	require.Equal(t, 500, service.lastFilters.PageSize)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{})
	for _, query := range []string{
		"from=2024-03-20&to=2024-03-01",
		"from=2023-01-01&to=2024-03-01",
		"to=yesterday",
		"from=2024-02-30",
		"page=0",
		"page_size=-5",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestExportRejectsBadFilters(t *testing.T) {
	service := &stubTimelineService{}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/export.csv?from=2024-03-10&to=2024-03-01", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid date range")
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "admin-1", Action: "profile.deactivate", Entity: "user_profile", EntityID: "abc"}}}
	router := newAuditRouter(t, service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit/export.csv?from=2024-03-01&to=2024-03-05", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rr.Body.String(), "profile.deactivate")
}
