package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/httpx"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
)

// ItemLister lists the parts a workshop can consume.
type ItemLister interface {
	List(ctx context.Context, workshopID int64) ([]inventory.Item, error)
}

// Handler wires HTTP endpoints for maintenance orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	items     ItemLister
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service, items ItemLister, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, items: items, templates: templates, csrf: csrf}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/{orderID}/complete", h.handleComplete)
}

type ordersPageData struct {
	Orders []Order
	Items  []inventory.Item
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, workshopID, ok := workshopCaller(w, r)
	if !ok {
		return
	}
	orders, err := h.service.ListOpen(r.Context(), workshopID)
	if err != nil {
		h.logger.Error("list orders", slog.Int64("workshop_id", workshopID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	items, err := h.items.List(r.Context(), workshopID)
	if err != nil {
		h.logger.Error("list inventory", slog.Int64("workshop_id", workshopID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Órdenes de mantención",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(r.Context()),
		CurrentPath: r.URL.Path,
		User:        &view.UserInfo{ID: caller.UserID, Email: caller.Email, Role: caller.Role},
		Data:        ordersPageData{Orders: orders, Items: items},
	}
	if err := h.templates.Render(w, "pages/orders.html", viewData); err != nil {
		h.logger.Error("render orders", slog.Any("error", err))
	}
}

type completeRequest struct {
	Parts []struct {
		ItemID   int64 `json:"item_id"`
		Quantity int   `json:"quantity"`
	} `json:"parts"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	caller, workshopID, ok := workshopCaller(w, r)
	if !ok {
		return
	}
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		h.respond(w, r, isJSON, ErrOrderNotFound)
		return
	}

	var parts []PartUsage
	if isJSON {
		var body completeRequest
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
		for _, p := range body.Parts {
			parts = append(parts, PartUsage{ItemID: p.ItemID, Quantity: p.Quantity})
		}
	} else {
		parts, err = partsFromForm(r)
		if err != nil {
			h.respond(w, r, false, err)
			return
		}
	}

	err = h.service.Complete(r.Context(), caller.UserID, workshopID, orderID, parts)
	if err == nil {
		h.logger.Info("order completed", slog.Int64("order_id", orderID), slog.Int64("workshop_id", workshopID), slog.Int("parts", len(parts)))
	}
	h.respond(w, r, isJSON, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, isJSON bool, err error) {
	if err != nil && httpx.Status(err) == http.StatusInternalServerError {
		h.logger.Error("complete order", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	if isJSON {
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err != nil {
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: userMessage(err)})
		} else {
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Orden completada."})
		}
	}
	http.Redirect(w, r, "/workshop/orders", http.StatusSeeOther)
}

// partsFromForm reads part_<itemID>=<qty> fields, skipping zero quantities.
func partsFromForm(r *http.Request) ([]PartUsage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, ErrInvalidPart
	}
	var parts []PartUsage
	for key, values := range r.PostForm {
		raw, ok := strings.CutPrefix(key, "part_")
		if !ok || len(values) == 0 {
			continue
		}
		itemID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, ErrInvalidPart
		}
		qty, err := strconv.Atoi(strings.TrimSpace(values[0]))
		if err != nil || qty < 0 {
			return nil, ErrInvalidPart
		}
		if qty > 0 {
			parts = append(parts, PartUsage{ItemID: itemID, Quantity: qty})
		}
	}
	return parts, nil
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyCompleted):
		return "La orden ya fue completada."
	case errors.Is(err, ErrOrderNotFound):
		return "La orden no existe en este taller."
	case errors.Is(err, ErrInvalidPart):
		return "Las cantidades de repuestos no son válidas."
	default:
		return shared.UserSafeMessage(err)
	}
}

func workshopCaller(w http.ResponseWriter, r *http.Request) (gate.Caller, int64, bool) {
	caller, ok := gate.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return gate.Caller{}, 0, false
	}
	id, ok := caller.Workshop()
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return gate.Caller{}, 0, false
	}
	return caller, id, true
}
