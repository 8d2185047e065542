package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pos/meridian-pos/internal/app"
	"github.com/meridian-pos/meridian-pos/internal/auth"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	_ "github.com/meridian-pos/meridian-pos/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func newRouter(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return r
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(httptest.NewRecorder().Body, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), sessionManager, csrfManager)
	return handler, sessionManager
}

func doLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	router := newRouter(handler)
	router.ServeHTTP(res, req)
	return res, sess
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	require.Equal(t, http.StatusOK, res.Code)
	var payload struct {
		UserID    int64  `json:"user_id"`
		Email     string `json:"email"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, int64(7), payload.UserID)
	require.NotEmpty(t, payload.CSRFToken)
	require.Equal(t, "7", sess.User())
	require.Equal(t, int64(7), repo.sessions[sess.ID])
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"wrongpass"}`)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, sess.User())
}

func TestLoginInactiveUser(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: false}}
	handler, sessionManager := newAuthHandler(t, repo)

	res, _ := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubRepo{})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"short"}`)

	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLogoutRemovesSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 3, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sessionManager := newAuthHandler(t, repo)

	_, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)
	require.Contains(t, repo.sessions, sess.ID)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.NotContains(t, repo.sessions, sess.ID)
}

func TestLoginThroughFullMiddlewareChain(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 9, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(httptest.NewRecorder().Body, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), sessionManager, csrfManager)

	router := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(app.MiddlewareConfig{
		Logger:         logger,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
	}) {
		router.Use(mw)
	}
	router.Route("/auth", handler.MountRoutes)

	// A fresh client first fetches its token; this also sets the
	// session cookie.
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var minted struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &minted))
	require.NotEmpty(t, minted.CSRFToken)
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Login without the token stays blocked.
	blocked := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@test.local","password":"correctpass"}`))
	blocked.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		blocked.AddCookie(c)
	}
	res = httptest.NewRecorder()
	router.ServeHTTP(res, blocked)
	require.Equal(t, http.StatusForbidden, res.Code)

	// With cookie and token the same request succeeds.
	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@test.local","password":"correctpass"}`))
	login.Header.Set("Content-Type", "application/json")
	login.Header.Set(shared.CSRFHeaderName, minted.CSRFToken)
	for _, c := range cookies {
		login.AddCookie(c)
	}
	res = httptest.NewRecorder()
	router.ServeHTTP(res, login)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		UserID int64 `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, int64(9), payload.UserID)
}
