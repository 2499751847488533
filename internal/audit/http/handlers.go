package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/audit"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
)

const (
	dateLayout   = "2006-01-02"
	defaultRange = 7 * 24 * time.Hour
	maxRange     = 90 * 24 * time.Hour
)

var errInvalidRange = errors.New("invalid date range")

// TimelineService is what the handler needs from audit.Service.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline. Access control is applied by the gate
// guard on the mounting route.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	templates *view.Engine
	csrf      *shared.CSRFManager
	now       func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.serverError(w, "load audit timeline", err)
		return
	}

	var csrfToken string
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
	}
	data := view.TemplateData{
		Title:       "Auditoría",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(r.Context()),
		CurrentPath: r.URL.Path,
		Data:        audit.ViewModel{Filters: filters, Rows: result.Rows, Paging: result.Paging},
	}
	if caller, ok := gate.CallerFromContext(r.Context()); ok {
		data.User = &view.UserInfo{ID: caller.UserID, Email: caller.Email, Role: caller.Role}
	}
	if err := h.templates.Render(w, "pages/audit.html", data); err != nil {
		h.logger.Error("render audit timeline", slog.Any("error", err))
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.serverError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.serverError(w, "encode audit csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sigve-audit.csv"`)
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// parseFilters reads the query. The range defaults to the week ending today
// and may span at most maxRange. Page size is left to the service.
func (h *Handler) parseFilters(q url.Values) (audit.TimelineFilters, error) {
	to, err := dateParam(q, "to", h.now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	from, err := dateParam(q, "from", to.Add(-defaultRange))
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	if from.After(to) || to.Sub(from) > maxRange {
		return audit.TimelineFilters{}, errInvalidRange
	}
	page, err := positiveParam(q, "page", 1)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	pageSize, err := positiveParam(q, "page_size", 0)
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	return audit.TimelineFilters{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func dateParam(q url.Values, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date", name)
	}
	return t, nil
}

func positiveParam(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
