package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
)

// fakeIdentity stubs ResolveSession; the embedded interface panics on
// anything else the middleware should not be calling.
type fakeIdentity struct {
	identity.Service
	resolve      func(ctx context.Context, token string) (*identity.Principal, error)
	resolveCalls int
}

func (f *fakeIdentity) ResolveSession(ctx context.Context, token string) (*identity.Principal, error) {
	f.resolveCalls++
	return f.resolve(ctx, token)
}

func alicePrincipal() *identity.Principal {
	return identity.NewPrincipal(1, "alice", "alice@x.com", models.RoleUser,
		[]string{"profile.view", "profile.edit"})
}

func echoPrincipal(t *testing.T) (http.Handler, *[]string) {
	t.Helper()
	var seen []string
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			seen = append(seen, p.Username)
		} else {
			seen = append(seen, "")
		}
		w.WriteHeader(http.StatusOK)
	}), &seen
}

func newTestAuthenticator(t *testing.T, svc identity.Service, cacheTTL time.Duration) *Authenticator {
	t.Helper()
	tokens, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	authn, err := NewAuthenticator(AuthnDependencies{
		Identity: svc,
		Tokens:   tokens,
		CacheTTL: cacheTTL,
	})
	require.NoError(t, err)
	return authn
}

func TestAuthnSessionCookie(t *testing.T) {
	t.Parallel()

	svc := &fakeIdentity{resolve: func(ctx context.Context, token string) (*identity.Principal, error) {
		require.Equal(t, "good-token", token)
		return alicePrincipal(), nil
	}}
	authn := newTestAuthenticator(t, svc, 0)
	handler, seen := echoPrincipal(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good-token"})
	rec := httptest.NewRecorder()
	authn.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, *seen)
}

func TestAuthnInvalidSessionPassesThroughAndClearsCookie(t *testing.T) {
	t.Parallel()

	svc := &fakeIdentity{resolve: func(ctx context.Context, token string) (*identity.Principal, error) {
		return nil, identity.ErrInvalidCredentials
	}}
	authn := newTestAuthenticator(t, svc, 0)
	handler, seen := echoPrincipal(t)

	// A revoked session cookie must not block the request itself: the
	// route's policy rejects if authentication is required, and login has
	// to stay reachable with a stale cookie in the browser.
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "revoked"})
	rec := httptest.NewRecorder()
	authn.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{""}, *seen, "request should continue unauthenticated")

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared, "stale cookie should be cleared")
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestAuthnBearerToken(t *testing.T) {
	t.Parallel()

	svc := &fakeIdentity{resolve: func(ctx context.Context, token string) (*identity.Principal, error) {
		t.Fatal("session resolution should not run for bearer requests")
		return nil, nil
	}}
	authn := newTestAuthenticator(t, svc, 0)
	handler, seen := echoPrincipal(t)

	tokens, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	token, err := tokens.Issue(alicePrincipal())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authn.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, *seen)
}

func TestAuthnNoCredentialsPassesThrough(t *testing.T) {
	t.Parallel()

	svc := &fakeIdentity{resolve: func(ctx context.Context, token string) (*identity.Principal, error) {
		return nil, identity.ErrInvalidCredentials
	}}
	authn := newTestAuthenticator(t, svc, 0)
	handler, seen := echoPrincipal(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	authn.Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{""}, *seen)
	assert.Zero(t, svc.resolveCalls)
}

func TestAuthnSessionCache(t *testing.T) {
	t.Parallel()

	svc := &fakeIdentity{resolve: func(ctx context.Context, token string) (*identity.Principal, error) {
		return alicePrincipal(), nil
	}}
	authn := newTestAuthenticator(t, svc, time.Minute)
	handler, _ := echoPrincipal(t)

	send := func() {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cached-token"})
		rec := httptest.NewRecorder()
		authn.Middleware(handler).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	send()
	send()
	assert.Equal(t, 1, svc.resolveCalls, "second request should hit the cache")

	// Forget evicts immediately, forcing a fresh resolve.
	authn.Forget("cached-token")
	send()
	assert.Equal(t, 2, svc.resolveCalls)
}
