package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	_ "github.com/meridian-pos/meridian-pos/testing"
)

type stubPermissions struct {
	granted map[int64][]string
}

func (s *stubPermissions) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.granted[userID], nil
}

func (s *stubPermissions) Has(ctx context.Context, userID int64, permission string) (bool, error) {
	for _, p := range s.granted[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func guardedRequest(t *testing.T, mw func(http.Handler) http.Handler, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	if userID != "" {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		manager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
		sess, err := manager.Load(context.Background(), req)
		require.NoError(t, err)
		sess.SetUser(userID)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	return res
}

func TestRequireAnyWithoutSessionIsUnauthorized(t *testing.T) {
	mw := rbac.Middleware{Service: &stubPermissions{}}

	res := guardedRequest(t, mw.RequireAny(shared.PermStockAdjust), "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequireAnyWithoutPermissionIsForbidden(t *testing.T) {
	source := &stubPermissions{granted: map[int64][]string{5: {shared.PermSalesEdit}}}
	mw := rbac.Middleware{Service: source}

	res := guardedRequest(t, mw.RequireAny(shared.PermStockAdjust), "5")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAnyAdmitsGrantedUser(t *testing.T) {
	source := &stubPermissions{granted: map[int64][]string{5: {shared.PermStockAdjust}}}
	mw := rbac.Middleware{Service: source}

	res := guardedRequest(t, mw.RequireAny(shared.PermStockAdjust), "5")
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	source := &stubPermissions{granted: map[int64][]string{5: {shared.PermStockAdjust}}}
	mw := rbac.Middleware{Service: source}

	res := guardedRequest(t, mw.RequireAll(shared.PermStockAdjust, shared.PermAuditResolve), "5")
	require.Equal(t, http.StatusForbidden, res.Code)

	source.granted[5] = append(source.granted[5], shared.PermAuditResolve)
	res = guardedRequest(t, mw.RequireAll(shared.PermStockAdjust, shared.PermAuditResolve), "5")
	require.Equal(t, http.StatusNoContent, res.Code)
}
