package products

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

// MountRoutes registers product routes.
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
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(internalShared.PermCatalogPrice))
		r.Put("/{id}/prices", h.UpdatePrices)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := shared.ListFilters{Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if q.Get("category_id") != "" {
		if id, err := strconv.ParseInt(q.Get("category_id"), 10, 64); err == nil {
			filters.CategoryID = &id
		}
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}

	products, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, limit, _ := filters.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   products,
		"pagination": internalShared.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	product, err := h.service.Create(r.Context(), Product{
		Reference:     form.Reference,
		Name:          form.Name,
		CategoryID:    form.CategoryID,
		Unit:          form.Unit,
		PurchasePrice: form.PurchasePrice,
		SalePrice:     form.SalePrice,
		LowStockAt:    form.LowStockAt,
		IsActive:      form.IsActive,
	})
	if err != nil {
		h.logger.Error("create product failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.Update(r.Context(), id, Product{
		Reference:  form.Reference,
		Name:       form.Name,
		CategoryID: form.CategoryID,
		Unit:       form.Unit,
		LowStockAt: form.LowStockAt,
		IsActive:   form.IsActive,
	}); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var form PriceForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.UpdatePrices(r.Context(), id, Product{
		PurchasePrice: form.PurchasePrice,
		SalePrice:     form.SalePrice,
		LowStockAt:    form.LowStockAt,
	}); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
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
	case errors.Is(err, shared.ErrDuplicate):
		return httpx.ErrDuplicate
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidID):
		return httpx.ErrValidation
	case errors.Is(err, shared.ErrInUse):
		return httpx.ErrConflict
	default:
		return err
	}
}
