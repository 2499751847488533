package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/httpx"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
)

// Handler wires HTTP endpoints for inventory module. Routes expect a
// workshop guard upstream so a Caller with a workshop is in the context.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	gate      *gate.Gate
	validator *validator.Validate
	threshold int
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, g *gate.Gate, lowStockThreshold int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, gate: g, validator: validator.New(), threshold: lowStockThreshold}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/items.json", h.handleListJSON)
	r.Post("/{itemID}/consume", h.handleConsume)
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireWorkshopUser(profiles.RoleAdminTaller))
		r.Post("/{itemID}/restock", h.handleRestock)
	})
}

type inventoryPageData struct {
	Items     []Item
	Threshold int
}

type quantityForm struct {
	Quantity int `validate:"required,gt=0,lte=100000"` // MaxQuantity
}

type stockResponse struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	caller, workshopID, ok := h.workshop(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), workshopID)
	if err != nil {
		h.logger.Error("list inventory", slog.Int64("workshop_id", workshopID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Inventario",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(r.Context()),
		CurrentPath: r.URL.Path,
		User:        &view.UserInfo{ID: caller.UserID, Email: caller.Email, Role: caller.Role},
		Data:        inventoryPageData{Items: items, Threshold: h.threshold},
	}
	if err := h.templates.Render(w, "pages/inventory.html", viewData); err != nil {
		h.logger.Error("render inventory", slog.Any("error", err))
	}
}

func (h *Handler) handleListJSON(w http.ResponseWriter, r *http.Request) {
	_, workshopID, ok := h.workshop(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), workshopID)
	if err != nil {
		h.logger.Error("list inventory", slog.Int64("workshop_id", workshopID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, h.service.Consume, "Stock descontado.")
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, h.service.Restock, "Stock repuesto.")
}

type moveFunc func(ctx context.Context, actorID string, workshopID, itemID int64, qty int) (int, error)

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request, move moveFunc, success string) {
	caller, workshopID, ok := h.workshop(w, r)
	if !ok {
		return
	}
	wantsJSON := strings.Contains(r.Header.Get("Accept"), "application/json")
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		h.fail(w, r, wantsJSON, &StockError{ItemID: 0, Err: ErrItemNotFound})
		return
	}
	qty, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	if err := h.validator.Struct(quantityForm{Quantity: qty}); err != nil {
		h.fail(w, r, wantsJSON, ErrInvalidQuantity)
		return
	}

	quantity, err := move(r.Context(), caller.UserID, workshopID, itemID, qty)
	if err != nil {
		h.fail(w, r, wantsJSON, err)
		return
	}
	if wantsJSON {
		httpx.JSON(w, http.StatusOK, stockResponse{ItemID: itemID, Quantity: quantity})
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: success})
	}
	http.Redirect(w, r, "/workshop/inventory", http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, wantsJSON bool, err error) {
	if httpx.Status(err) == http.StatusInternalServerError {
		h.logger.Error("inventory mutation", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	if wantsJSON {
		httpx.RespondError(w, err)
		return
	}
	message := shared.UserSafeMessage(err)
	if errors.Is(err, ErrInvalidQuantity) {
		message = "La cantidad debe ser mayor a cero."
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: message})
	}
	http.Redirect(w, r, "/workshop/inventory", http.StatusSeeOther)
}

func (h *Handler) workshop(w http.ResponseWriter, r *http.Request) (gate.Caller, int64, bool) {
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
