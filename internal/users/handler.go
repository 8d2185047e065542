package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Authorizer answers whether a user holds a role. Satisfied by the
// rbac service.
type Authorizer interface {
	HasRole(ctx context.Context, userID int64, roleName string) (bool, error)
}

// Handler manages user administration endpoints. Unlike other modules
// these routes skip the permission middleware: each one re-checks the
// caller's admin role itself so a stale route table can never expose a
// mutation.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	authorizer Authorizer
	validator  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authorizer Authorizer) *Handler {
	return &Handler{logger: logger, service: service, authorizer: authorizer, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/{id}", h.getUser)
	r.Post("/", h.createUser)
	r.Put("/{id}", h.updateUser)
	r.Delete("/{id}", h.deleteUser)
}

type createRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	IsActive bool   `json:"is_active"`
}

type updateRequest struct {
	Name     string `json:"name" validate:"required"`
	IsActive bool   `json:"is_active"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

// requireAdmin resolves the caller from the session and verifies the
// admin role against the store. Returns the caller id, or 0 after
// writing the error response.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return 0
	}
	callerID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid session")
		return 0
	}
	if h.authorizer == nil {
		h.logger.Error("user admin authorizer not configured")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "authorization backend not configured")
		return 0
	}
	isAdmin, err := h.authorizer.HasRole(r.Context(), callerID, "admin")
	if err != nil {
		h.logger.Error("admin role lookup failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", err.Error())
		return 0
	}
	if !isAdmin {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin role required")
		return 0
	}
	return callerID
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == 0 {
		return
	}
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == 0 {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == 0 {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == 0 {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, UpdateInput{
		Name:     req.Name,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == 0 {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("user store operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Store Error", err.Error())
	}
}
