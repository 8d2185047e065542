package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/levels", h.handleLevels)
		r.Get("/movements", h.handleMovements)
		r.Get("/quantity", h.handleQuantity)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockAdjust))
		r.Post("/adjustments", h.handleAdjust)
	})
}

type adjustmentRequest struct {
	ProductID      int64  `json:"product_id" validate:"required"`
	WarehouseID    int64  `json:"warehouse_id" validate:"required"`
	Delta          int64  `json:"delta"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

type movementResponse struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	Delta        int64     `json:"delta"`
	ResultingQty int64     `json:"resulting_qty"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	Anomaly      bool      `json:"anomaly,omitempty"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID:      req.ProductID,
		WarehouseID:    req.WarehouseID,
		Delta:          req.Delta,
		ActorID:        currentUserID(shared.SessionFromContext(r.Context())),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Error("post adjustment failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	levels, err := h.service.ListLevels(r.Context(), warehouseID)
	if err != nil {
		h.logger.Error("list levels failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, levels)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if productID == 0 || warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id and warehouse_id are required")
		return
	}
	qty, err := h.service.CurrentQuantity(r.Context(), productID, warehouseID)
	if err != nil {
		h.logger.Error("current quantity failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"product_id": productID, "warehouse_id": warehouseID, "qty": qty})
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	filter := MovementFilter{}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return MovementFilter{}, err
		}
		filter.From = from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return MovementFilter{}, err
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	return filter, nil
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:           m.ID,
		ProductID:    m.ProductID,
		WarehouseID:  m.WarehouseID,
		Delta:        m.Delta,
		ResultingQty: m.ResultingQty,
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt,
		Anomaly:      m.Anomaly,
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrZeroDelta):
		return httpx.ErrValidation
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrWarehouseNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
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
