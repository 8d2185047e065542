package expenses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for expenses.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs expenses handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermExpensesView, shared.PermExpensesEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermExpensesEdit))
		r.Post("/", h.handleRecord)
		r.Delete("/{id}", h.handleDelete)
	})
}

type recordRequest struct {
	Date        time.Time       `json:"date"`
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	expense, err := h.service.Record(r.Context(), Input{
		Date:        req.Date,
		WarehouseID: req.WarehouseID,
		UserID:      currentUserID(shared.SessionFromContext(r.Context())),
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
	})
	if err != nil {
		h.logger.Error("record expense failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense id")
		return
	}
	expense, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, expense)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Category: q.Get("category")}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if v := q.Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}
	expenses, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list expenses failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"expenses":   expenses,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense id")
		return
	}
	if err := h.service.Delete(r.Context(), id, currentUserID(shared.SessionFromContext(r.Context()))); err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrValidation):
		return httpx.ErrValidation
	default:
		return err
	}
}

func currentUserID(sess *shared.Session) int64 {
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
