package profiles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/dberr"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
)

// Handler serves the profile administration pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers routes. Callers guard the group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleProvision)
	r.Post("/{profileID}/deactivate", h.handleSetActive(false))
	r.Post("/{profileID}/activate", h.handleSetActive(true))
}

type listPageData struct {
	Filter   ListFilter
	Profiles []Profile
	Roles    []Role
	Form     ProvisionInput
	Errors   map[string]string
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, ProvisionInput{}, nil)
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, fieldErrors := parseProvisionForm(r)
	if len(fieldErrors) > 0 {
		in.Password = ""
		h.render(w, r, http.StatusBadRequest, in, fieldErrors)
		return
	}

	actor := shared.SessionFromContext(r.Context())
	actorID := ""
	if actor != nil {
		actorID = actor.Get(shared.SessionUserID)
	}
	profile, err := h.service.Provision(r.Context(), actorID, in)
	if err != nil {
		in.Password = ""
		h.render(w, r, http.StatusBadRequest, in, h.formErrors(err))
		return
	}
	h.logger.Info("profile provisioned", slog.String("profile_id", profile.ID), slog.String("actor_id", actorID))
	h.flash(r, shared.FlashSuccess, "Usuario creado.")
	http.Redirect(w, r, "/admin/profiles", http.StatusSeeOther)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "profileID")
		if _, err := uuid.Parse(id); err != nil {
			http.NotFound(w, r)
			return
		}
		actorID := ""
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			actorID = sess.Get(shared.SessionUserID)
		}
		var err error
		if active {
			err = h.service.Activate(r.Context(), actorID, id)
		} else {
			err = h.service.Deactivate(r.Context(), actorID, id)
		}
		switch {
		case errors.Is(err, ErrNotFound):
			h.flash(r, shared.FlashError, "El usuario no existe.")
		case err != nil:
			h.logger.Error("set profile active", slog.String("profile_id", id), slog.Any("error", err))
			h.flash(r, shared.FlashError, shared.UserSafeMessage(err))
		case active:
			h.flash(r, shared.FlashSuccess, "Usuario activado.")
		default:
			h.flash(r, shared.FlashSuccess, "Usuario desactivado.")
		}
		http.Redirect(w, r, "/admin/profiles", http.StatusSeeOther)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, form ProvisionInput, fieldErrors map[string]string) {
	filter := ListFilter{OnlyActive: r.URL.Query().Get("active") == "1", Limit: 200}
	profiles, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list profiles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var user *view.UserInfo
	if sess != nil {
		user = &view.UserInfo{ID: sess.Get(shared.SessionUserID), Role: sess.Get(shared.SessionUserRole)}
	}
	viewData := view.TemplateData{
		Title:       "Usuarios",
		CSRFToken:   csrfToken,
		Flash:       shared.PopFlash(r.Context()),
		CurrentPath: r.URL.Path,
		User:        user,
		Data:        listPageData{Filter: filter, Profiles: profiles, Roles: roles, Form: form, Errors: fieldErrors},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/profiles.html", viewData); err != nil {
		h.logger.Error("render profiles", slog.Any("error", err))
	}
}

func (h *Handler) formErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	if fe, ok := dberr.AsFieldError(err); ok {
		return map[string]string{fe.Field: fe.UserMessage()}
	}
	h.logger.Error("provision profile", slog.Any("error", err))
	return map[string]string{"general": shared.UserSafeMessage(err)}
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func parseProvisionForm(r *http.Request) (ProvisionInput, map[string]string) {
	fieldErrors := make(map[string]string)
	in := ProvisionInput{
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		RUT:       r.PostFormValue("rut"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Phone:     r.PostFormValue("phone"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("role_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fieldErrors["role_id"] = "Rol inválido."
		}
		in.RoleID = id
	}
	in.FireStationID = optionalID(r.PostFormValue("fire_station_id"), "fire_station_id", fieldErrors)
	in.WorkshopID = optionalID(r.PostFormValue("workshop_id"), "workshop_id", fieldErrors)
	return in, fieldErrors
}

func optionalID(raw, field string, fieldErrors map[string]string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fieldErrors[field] = "Identificador inválido."
		return nil
	}
	return &id
}
