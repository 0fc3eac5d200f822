package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	policies, err := identity.DefaultPolicySet()
	require.NoError(t, err)
	authz, err := NewAuthorizer(policies)
	require.NoError(t, err)
	return authz
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, principal *identity.Principal, path string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.With(mw).Get("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if principal != nil {
		req = req.WithContext(auth.SetPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireRejectsUnauthenticated(t *testing.T) {
	t.Parallel()

	authz := newTestAuthorizer(t)
	mw := authz.Require(identity.PolicyAdminOnly, nil)

	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminOnly(t *testing.T) {
	t.Parallel()

	authz := newTestAuthorizer(t)
	mw := authz.Require(identity.PolicyAdminOnly, nil)

	admin := identity.NewPrincipal(1, "root", "", models.RoleAdmin, nil)
	user := identity.NewPrincipal(2, "alice", "", models.RoleUser, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	mw(okHandler()).ServeHTTP(rec, req.WithContext(auth.SetPrincipal(req.Context(), admin)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	mw(okHandler()).ServeHTTP(rec, req.WithContext(auth.SetPrincipal(req.Context(), user)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireSelfOrAdminFromURLParam(t *testing.T) {
	t.Parallel()

	authz := newTestAuthorizer(t)
	mw := authz.Require(identity.PolicyCanEditOwnProfile, OwnerFromURLParam("id"))

	self := identity.NewPrincipal(7, "alice", "", models.RoleUser, nil)
	assert.Equal(t, http.StatusOK, serve(t, mw, self, "/accounts/7").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, mw, self, "/accounts/8").Code)

	admin := identity.NewPrincipal(1, "root", "", models.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, serve(t, mw, admin, "/accounts/8").Code)
}

func TestRequirePanicsOnUnknownPolicy(t *testing.T) {
	t.Parallel()

	authz := newTestAuthorizer(t)
	assert.Panics(t, func() {
		authz.Require("NoSuchPolicy", nil)
	})
}
