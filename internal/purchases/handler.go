package purchases

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for purchase intake.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs purchases handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchasesView, shared.PermPurchasesEdit))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPurchasesEdit))
		r.Post("/", h.handleRecord)
		r.Put("/{id}", h.handleAmend)
		r.Post("/{id}/cancel", h.handleCancel)
	})
}

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       int64           `json:"qty" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type recordRequest struct {
	Number      string        `json:"number" validate:"required"`
	Date        time.Time     `json:"date"`
	WarehouseID int64         `json:"warehouse_id" validate:"required"`
	Items       []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type amendRequest struct {
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type purchaseResponse struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	WarehouseID int64           `json:"warehouse_id"`
	UserID      int64           `json:"user_id"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Items       []Item          `json:"items,omitempty"`
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
	input := RecordInput{
		Number:      req.Number,
		Date:        req.Date,
		WarehouseID: req.WarehouseID,
		UserID:      currentUserID(shared.SessionFromContext(r.Context())),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice})
	}
	purchase, err := h.service.Record(r.Context(), input)
	if err != nil {
		h.logger.Error("record purchase failed", slog.Any("error", err), slog.String("number", req.Number))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(purchase, nil))
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	var req amendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemInput{ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice})
	}
	purchase, err := h.service.Amend(r.Context(), id, currentUserID(shared.SessionFromContext(r.Context())), items)
	if err != nil {
		h.logger.Error("amend purchase failed", slog.Any("error", err), slog.Int64("purchase_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(purchase, nil))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	if err := h.service.Cancel(r.Context(), id, currentUserID(shared.SessionFromContext(r.Context()))); err != nil {
		h.logger.Error("cancel purchase failed", slog.Any("error", err), slog.Int64("purchase_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase id")
		return
	}
	purchase, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(purchase, items))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if v := q.Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}
	purchases, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchases failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]purchaseResponse, 0, len(purchases))
	for _, purchase := range purchases {
		out = append(out, toResponse(purchase, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  out,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func toResponse(purchase Purchase, items []Item) purchaseResponse {
	return purchaseResponse{
		ID:          purchase.ID,
		Number:      purchase.Number,
		Date:        purchase.Date,
		WarehouseID: purchase.WarehouseID,
		UserID:      purchase.UserID,
		Status:      purchase.Status,
		Total:       purchase.Total,
		Items:       items,
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrProductNotFound), errors.Is(err, ledger.ErrWarehouseNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrValidation):
		return httpx.ErrValidation
	case errors.Is(err, ErrInvalidState), errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ledger.ErrConflict):
		return httpx.ErrConflict
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
