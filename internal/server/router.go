package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/middleware"
	"github.com/validome/accountd/internal/services/identity"
)

// RouterOptions controls the construction of the accountd HTTP router.
type RouterOptions struct {
	Identity      identity.Service
	Tokens        *auth.TokenIssuer
	Authenticator *middleware.Authenticator
	Authorizer    *middleware.Authorizer
	// SecureCookies marks session cookies Secure. Leave false for local
	// development over plain HTTP.
	SecureCookies bool
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware and the account
// handlers mounted. Authorization policies are resolved at mount time: a
// route referencing an unregistered policy panics here rather than at
// request time.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if opts.Authenticator != nil {
		r.Use(opts.Authenticator.Middleware)
	}

	h := &Handlers{
		Identity:      opts.Identity,
		Tokens:        opts.Tokens,
		Authenticator: opts.Authenticator,
		SecureCookies: opts.SecureCookies,
	}

	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/api/auth/whoami", h.HandleWhoAmI)

	if opts.Authorizer != nil {
		az := opts.Authorizer
		r.Route("/api/accounts", func(r chi.Router) {
			r.With(az.Require(identity.PolicyAdminOnly, nil)).
				Get("/", h.HandleListAccounts)
			r.With(az.Require(identity.PolicyCanViewDeletedUsers, nil)).
				Get("/deleted", h.HandleListDeletedAccounts)
			r.With(az.Require(identity.PolicyAdminOnly, nil)).
				Get("/stats", h.HandleAccountStats)

			r.Route("/{id}", func(r chi.Router) {
				selfOrAdmin := az.Require(identity.PolicyCanEditOwnProfile, middleware.OwnerFromURLParam("id"))
				r.With(selfOrAdmin).Get("/", h.HandleGetAccount)
				r.With(selfOrAdmin).Put("/", h.HandleUpdateAccount)

				manage := az.Require(identity.PolicyCanManageUsers, nil)
				r.With(manage).Delete("/", h.HandleDeleteAccount)
				r.With(manage).Post("/restore", h.HandleRestoreAccount)

				adminOnly := az.Require(identity.PolicyAdminOnly, nil)
				r.With(adminOnly).Put("/role", h.HandleAssignRole)
				r.With(adminOnly).Put("/permissions", h.HandleAssignPermissions)
			})
		})
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}
