// Package middleware provides the HTTP authentication and authorization
// layers mounted on the router.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/services/identity"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "accountd_session"

// sessionCacheSize bounds the in-process principal cache.
const sessionCacheSize = 1024

// AuthnDependencies bundles collaborators required by the authentication
// middleware.
type AuthnDependencies struct {
	Identity identity.Service
	Tokens   *auth.TokenIssuer

	// CacheTTL bounds how long a resolved session principal may be served
	// without consulting the store again. Zero disables caching.
	CacheTTL time.Duration

	Logger *slog.Logger
}

// Authenticator resolves request credentials to a principal. Two schemes
// are tried in order: the session cookie, then an Authorization bearer
// token. Requests with no credentials pass through unauthenticated; the
// authorization layer decides whether that matters for the route.
type Authenticator struct {
	identity identity.Service
	tokens   *auth.TokenIssuer
	cache    *expirable.LRU[string, *identity.Principal]
	logger   *slog.Logger
}

// NewAuthenticator constructs the authenticator.
func NewAuthenticator(deps AuthnDependencies) (*Authenticator, error) {
	if deps.Identity == nil {
		return nil, errors.New("authn middleware requires the identity service")
	}
	if deps.Tokens == nil {
		return nil, errors.New("authn middleware requires a token issuer")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	var cache *expirable.LRU[string, *identity.Principal]
	if deps.CacheTTL > 0 {
		cache = expirable.NewLRU[string, *identity.Principal](sessionCacheSize, nil, deps.CacheTTL)
	}

	return &Authenticator{
		identity: deps.Identity,
		tokens:   deps.Tokens,
		cache:    cache,
		logger:   deps.Logger,
	}, nil
}

// Middleware authenticates the request and stores the principal on the
// context. Invalid credentials are rejected with 401; absent credentials
// pass through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			principal, err := a.resolveSession(r, cookie.Value)
			if err != nil {
				// A revoked or expired session must not block the request
				// outright: the user still needs /auth/login to work with a
				// stale cookie in the browser. Clear it and continue
				// unauthenticated; protected routes reject downstream.
				a.logger.Info("session rejected",
					"path", r.URL.Path, "error", err)
				clearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(ctx, principal)))
			return
		}

		if token, ok := bearerToken(r); ok {
			principal, err := a.tokens.Verify(token)
			if err != nil {
				a.logger.Info("bearer token rejected",
					"path", r.URL.Path, "error", err)
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(ctx, principal)))
			return
		}

		// No credentials; the route's policy decides whether to reject.
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolveSession(r *http.Request, token string) (*identity.Principal, error) {
	key := identity.HashSessionToken(token)

	if a.cache != nil {
		if principal, ok := a.cache.Get(key); ok {
			return principal, nil
		}
	}

	principal, err := a.identity.ResolveSession(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		a.cache.Add(key, principal)
	}
	return principal, nil
}

// Forget drops a session token from the principal cache. Called on logout
// so revocation takes effect immediately rather than at cache expiry.
func (a *Authenticator) Forget(token string) {
	if a.cache != nil {
		a.cache.Remove(identity.HashSessionToken(token))
	}
}

// clearSessionCookie expires a session cookie the server no longer
// recognizes, so the client stops re-sending it.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
