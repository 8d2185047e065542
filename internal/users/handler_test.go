package users_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/users"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]users.User
	hashes map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, users: make(map[int64]users.User), hashes: make(map[int64]string)}
}

func (m *memoryRepo) ListUsers(ctx context.Context) ([]users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]users.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryRepo) GetUser(ctx context.Context, id int64) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateUser(ctx context.Context, email, name, passwordHash string, isActive bool) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return users.User{}, users.ErrDuplicate
		}
	}
	now := time.Now()
	u := users.User{ID: m.nextID, Email: email, Name: name, IsActive: isActive, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	m.nextID++
	return u, nil
}

func (m *memoryRepo) UpdateUser(ctx context.Context, id int64, name string, isActive bool, passwordHash string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	u.Name = name
	u.IsActive = isActive
	u.UpdatedAt = time.Now()
	if passwordHash != "" {
		m.hashes[id] = passwordHash
	}
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return users.ErrNotFound
	}
	delete(m.users, id)
	delete(m.hashes, id)
	return nil
}

type stubAuthorizer struct {
	admins map[int64]bool
}

func (s *stubAuthorizer) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	if roleName != "admin" {
		return false, nil
	}
	return s.admins[userID], nil
}

type fixture struct {
	repo    *memoryRepo
	router  http.Handler
	session *shared.SessionManager
}

func newFixture(t *testing.T, admins map[int64]bool) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(httptest.NewRecorder().Body, nil))
	handler := users.NewHandler(logger, users.NewService(repo), &stubAuthorizer{admins: admins})
	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return &fixture{repo: repo, router: router, session: sessionManager}
}

func (f *fixture) do(t *testing.T, method, path, body string, callerID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if callerID != "" {
		sess, err := f.session.Load(context.Background(), req)
		require.NoError(t, err)
		sess.SetUser(callerID)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestCreateRequiresSession(t *testing.T) {
	f := newFixture(t, map[int64]bool{1: true})

	res := f.do(t, http.MethodPost, "/users", `{"email":"a@b.test","name":"A","password":"password1"}`, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, f.repo.users)
}

func TestCreateRequiresAdmin(t *testing.T) {
	f := newFixture(t, map[int64]bool{1: true})

	res := f.do(t, http.MethodPost, "/users", `{"email":"a@b.test","name":"A","password":"password1"}`, "2")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Empty(t, f.repo.users)
}

func TestCreateUpdateDeleteAsAdmin(t *testing.T) {
	f := newFixture(t, map[int64]bool{1: true})

	res := f.do(t, http.MethodPost, "/users", `{"email":"staff@shop.test","name":"Staff","password":"password1","is_active":true}`, "1")
	require.Equal(t, http.StatusCreated, res.Code)

	var created users.User
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	require.Equal(t, "staff@shop.test", created.Email)
	require.True(t, created.IsActive)

	hash := f.repo.hashes[created.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("password1")))

	res = f.do(t, http.MethodPut, "/users/1", `{"name":"Renamed","is_active":false}`, "1")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "Renamed", f.repo.users[created.ID].Name)
	require.False(t, f.repo.users[created.ID].IsActive)
	require.Equal(t, hash, f.repo.hashes[created.ID])

	res = f.do(t, http.MethodDelete, "/users/1", "", "1")
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Empty(t, f.repo.users)
}

func TestCreateDuplicateEmail(t *testing.T) {
	f := newFixture(t, map[int64]bool{1: true})

	res := f.do(t, http.MethodPost, "/users", `{"email":"a@b.test","name":"A","password":"password1"}`, "1")
	require.Equal(t, http.StatusCreated, res.Code)

	res = f.do(t, http.MethodPost, "/users", `{"email":"a@b.test","name":"B","password":"password1"}`, "1")
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestUpdateMissingUser(t *testing.T) {
	f := newFixture(t, map[int64]bool{1: true})

	res := f.do(t, http.MethodPut, "/users/42", `{"name":"Ghost","is_active":true}`, "1")
	require.Equal(t, http.StatusNotFound, res.Code)
}
