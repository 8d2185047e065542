package warehouses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian-pos/internal/catalog/shared"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	internalShared "github.com/meridian-pos/meridian-pos/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(internalShared.PermCatalogView, internalShared.PermCatalogEdit))
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalShared.PermCatalogEdit))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

type warehouseForm struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := shared.ListFilters{Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))

	warehouses, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list warehouses failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, limit, _ := filters.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouses": warehouses,
		"pagination": internalShared.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	warehouse, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form warehouseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	warehouse, err := h.service.Create(r.Context(), Warehouse{Name: form.Name, Location: form.Location})
	if err != nil {
		h.logger.Error("create warehouse failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	var form warehouseForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.Update(r.Context(), id, Warehouse{Name: form.Name, Location: form.Location}); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidID):
		return httpx.ErrValidation
	case errors.Is(err, shared.ErrInUse):
		return httpx.ErrConflict
	default:
		return err
	}
}
