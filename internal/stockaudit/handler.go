package stockaudit

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

// Handler wires HTTP endpoints for the audit workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs stockaudit handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers audit workflow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditSubmit, shared.PermAuditResolve))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuditSubmit))
		r.Post("/", h.handleSubmit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuditResolve))
		r.Post("/{id}/resolve", h.handleResolve)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuditDelete))
		r.Delete("/{id}", h.handleDelete)
	})
}

type submitLineRequest struct {
	ProductID             int64           `json:"product_id" validate:"required"`
	CountedQty            int64           `json:"counted_qty" validate:"gte=0"`
	ProposedPurchasePrice decimal.Decimal `json:"proposed_purchase_price"`
	ProposedSalePrice     decimal.Decimal `json:"proposed_sale_price"`
}

type submitRequest struct {
	WarehouseID int64               `json:"warehouse_id" validate:"required"`
	Notes       string              `json:"notes"`
	Lines       []submitLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type resolveLineRequest struct {
	ProductID     int64           `json:"product_id" validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
}

type resolveRequest struct {
	Decision string               `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Notes    string               `json:"notes"`
	Lines    []resolveLineRequest `json:"lines" validate:"dive"`
}

type submissionResponse struct {
	ID              int64      `json:"id"`
	WarehouseID     int64      `json:"warehouse_id"`
	ControllerID    int64      `json:"controller_id"`
	Status          Status     `json:"status"`
	ControllerNotes string     `json:"controller_notes"`
	ManagerNotes    string     `json:"manager_notes,omitempty"`
	ManagerID       int64      `json:"manager_id,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	Lines           []Line     `json:"lines,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := SubmitInput{
		WarehouseID:  req.WarehouseID,
		ControllerID: currentUserID(shared.SessionFromContext(r.Context())),
		Notes:        req.Notes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, SubmitLineInput{
			ProductID:             line.ProductID,
			CountedQty:            line.CountedQty,
			ProposedPurchasePrice: line.ProposedPurchasePrice,
			ProposedSalePrice:     line.ProposedSalePrice,
		})
	}
	submission, err := h.service.Submit(r.Context(), input)
	if err != nil {
		h.logger.Error("submit audit failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(submission, nil))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid submission id")
		return
	}
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ResolveInput{
		SubmissionID: id,
		ManagerID:    currentUserID(shared.SessionFromContext(r.Context())),
		Decision:     Decision(req.Decision),
		Notes:        req.Notes,
		Prices:       make(map[int64]LinePrices, len(req.Lines)),
	}
	for _, line := range req.Lines {
		input.Prices[line.ProductID] = LinePrices{PurchasePrice: line.PurchasePrice, SalePrice: line.SalePrice}
	}
	resolution, err := h.service.Resolve(r.Context(), input)
	if err != nil {
		h.logger.Error("resolve audit failed", slog.Any("error", err), slog.Int64("submission_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, resolution)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid submission id")
		return
	}
	if err := h.service.Delete(r.Context(), id, currentUserID(shared.SessionFromContext(r.Context()))); err != nil {
		h.logger.Error("delete audit failed", slog.Any("error", err), slog.Int64("submission_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid submission id")
		return
	}
	submission, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(submission, lines))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	submissions, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list audits failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]submissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		out = append(out, toResponse(sub, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"submissions": out,
		"pagination":  shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func toResponse(sub Submission, lines []Line) submissionResponse {
	resp := submissionResponse{
		ID:              sub.ID,
		WarehouseID:     sub.WarehouseID,
		ControllerID:    sub.ControllerID,
		Status:          sub.Status,
		ControllerNotes: sub.ControllerNotes,
		ManagerNotes:    sub.ManagerNotes,
		ManagerID:       sub.ManagerID,
		SubmittedAt:     sub.SubmittedAt,
		Lines:           lines,
	}
	if !sub.ResolvedAt.IsZero() {
		at := sub.ResolvedAt
		resp.ResolvedAt = &at
	}
	return resp
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
