package sales

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

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesView, shared.PermSalesEdit))
		r.Get("/", h.handleList)
		r.Get("/external", h.handleListExternal)
		r.Get("/{id}", h.handleGet)
		r.Get("/external/{id}", h.handleGetExternal)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesEdit))
		r.Post("/", h.handleRecord)
		r.Post("/external", h.handleRecordExternal)
	})
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       int64           `json:"qty" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type recordRequest struct {
	Date        time.Time     `json:"date"`
	WarehouseID int64         `json:"warehouse_id" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type externalRequest struct {
	Date         time.Time     `json:"date"`
	WarehouseID  int64         `json:"warehouse_id" validate:"required"`
	CustomerName string        `json:"customer_name" validate:"required"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
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
		Date:        req.Date,
		WarehouseID: req.WarehouseID,
		UserID:      currentUserID(shared.SessionFromContext(r.Context())),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	sale, err := h.service.Record(r.Context(), input)
	if err != nil {
		h.logger.Error("record sale failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleRecordExternal(w http.ResponseWriter, r *http.Request) {
	var req externalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID := currentUserID(shared.SessionFromContext(r.Context()))
	input := ExternalInput{
		Date:         req.Date,
		WarehouseID:  req.WarehouseID,
		UserID:       userID,
		CustomerName: req.CustomerName,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	// Below-list pricing is legal only for holders of the authorize
	// permission; the service rejects undercuts when this stays zero.
	authorized, err := h.rbac.Service.Has(r.Context(), userID, shared.PermSalesAuthorize)
	if err != nil {
		h.logger.Error("authorize lookup failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if authorized {
		input.AuthorizedBy = userID
	}
	sale, err := h.service.RecordExternal(r.Context(), input)
	if err != nil {
		h.logger.Error("record external sale failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	sale, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sale": sale, "lines": lines})
}

func (h *Handler) handleGetExternal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	sale, lines, err := h.service.GetExternal(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sale": sale, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	sales, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list sales failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleListExternal(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	sales, total, err := h.service.ListExternal(r.Context(), filter)
	if err != nil {
		h.logger.Error("list external sales failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func parseFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	var filter ListFilter
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if v := q.Get("from"); v != "" {
		filter.From, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		filter.To, _ = time.Parse("2006-01-02", v)
	}
	return filter
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrProductNotFound), errors.Is(err, ledger.ErrWarehouseNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrValidation):
		return httpx.ErrValidation
	case errors.Is(err, ErrUnauthorizedPrice):
		return httpx.ErrForbidden
	case errors.Is(err, ledger.ErrConflict):
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
