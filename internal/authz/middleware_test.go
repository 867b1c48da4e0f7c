package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/identity"
)

type stubSource struct {
	granted map[int64][]string
	err     error
}

func (s *stubSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.granted[userID], nil
}

type stubRecorder struct {
	allowed int
	denied  int
}

func (r *stubRecorder) RecordDecision(allowed bool) {
	if allowed {
		r.allowed++
	} else {
		r.denied++
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func runGuard(t *testing.T, guard func(http.Handler) http.Handler, ctx context.Context) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil).WithContext(ctx)
	res := httptest.NewRecorder()
	guard(okHandler()).ServeHTTP(res, req)
	return res.Code
}

func TestRequireAnyDeniesAnonymous(t *testing.T) {
	mw := Middleware{Source: &stubSource{}}
	code := runGuard(t, mw.RequireAny(PermRoleList), context.Background())
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestRequireAnyAllowsGranted(t *testing.T) {
	mw := Middleware{Source: &stubSource{granted: map[int64][]string{7: {PermRoleList}}}}

	ctx := identity.ContextWithUser(context.Background(), 7)
	require.Equal(t, http.StatusOK, runGuard(t, mw.RequireAny(PermRoleList, PermRoleRead), ctx))

	ctx = identity.ContextWithUser(context.Background(), 8)
	require.Equal(t, http.StatusForbidden, runGuard(t, mw.RequireAny(PermRoleList), ctx))
}

func TestRequireAllNeedsEveryToken(t *testing.T) {
	mw := Middleware{Source: &stubSource{granted: map[int64][]string{7: {PermRoleList, PermRoleRead}}}}
	ctx := identity.ContextWithUser(context.Background(), 7)

	require.Equal(t, http.StatusOK, runGuard(t, mw.RequireAll(PermRoleList, PermRoleRead), ctx))
	require.Equal(t, http.StatusForbidden, runGuard(t, mw.RequireAll(PermRoleList, PermRoleDelete), ctx))
}

func TestBootstrapBypassesPermissionChecks(t *testing.T) {
	mw := Middleware{Source: &stubSource{}}
	ctx := identity.ContextWithBootstrap(context.Background())
	require.Equal(t, http.StatusOK, runGuard(t, mw.RequireAll(PermRoleDelete), ctx))
}

func TestEmptyRequirementPassesThrough(t *testing.T) {
	mw := Middleware{Source: &stubSource{}}
	require.Equal(t, http.StatusOK, runGuard(t, mw.RequireAny(), context.Background()))
}

func TestGuardRecordsEveryDecision(t *testing.T) {
	metrics := &stubRecorder{}
	mw := Middleware{
		Source:  &stubSource{granted: map[int64][]string{7: {PermRoleList}}},
		Metrics: metrics,
	}

	ctx := identity.ContextWithUser(context.Background(), 7)
	require.Equal(t, http.StatusOK, runGuard(t, mw.RequireAny(PermRoleList), ctx))
	require.Equal(t, http.StatusForbidden, runGuard(t, mw.RequireAny(PermRoleDelete), ctx))
	require.Equal(t, 1, metrics.allowed)
	require.Equal(t, 1, metrics.denied)

	// Resolution failures deny and are counted too.
	failing := Middleware{Source: &stubSource{err: errors.New("storage down")}, Metrics: metrics}
	require.Equal(t, http.StatusInternalServerError, runGuard(t, failing.RequireAny(PermRoleList), ctx))
	require.Equal(t, 2, metrics.denied)
}
