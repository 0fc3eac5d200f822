package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/middleware"
	"github.com/validome/accountd/internal/repository"
	"github.com/validome/accountd/internal/server"
	"github.com/validome/accountd/internal/services/identity"
)

// sessionPurgeInterval is how often expired sessions are swept from the
// store. Expired sessions are already rejected at resolve time; the sweep
// just keeps the table from growing without bound.
const sessionPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the account API server",
	Long:  `Starts the HTTP server with the authentication and account management endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		logger.Info("connected to database")

		svc, err := identity.NewService(identity.Dependencies{
			Accounts:    repository.NewBunAccountRepository(db),
			Sessions:    repository.NewBunSessionRepository(db),
			Hasher:      identity.NewBcryptHasher(cfg.BcryptCost),
			Lockout:     identity.NewLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutDuration),
			SessionTTL:  cfg.SessionTTL,
			RememberTTL: cfg.RememberSessionTTL,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create identity service: %w", err)
		}

		tokens, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
		if err != nil {
			return fmt.Errorf("create token issuer: %w", err)
		}

		authn, err := middleware.NewAuthenticator(middleware.AuthnDependencies{
			Identity: svc,
			Tokens:   tokens,
			CacheTTL: cfg.SessionCacheTTL,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("configure authentication middleware: %w", err)
		}

		policies, err := identity.DefaultPolicySet()
		if err != nil {
			return fmt.Errorf("build authorization policies: %w", err)
		}
		authz, err := middleware.NewAuthorizer(policies)
		if err != nil {
			return fmt.Errorf("configure authorization middleware: %w", err)
		}

		r := server.NewRouter(server.RouterOptions{
			Identity:      svc,
			Tokens:        tokens,
			Authenticator: authn,
			Authorizer:    authz,
			SecureCookies: cfg.SecureCookies,
		})

		// h2c lets HTTP/2 clients connect without TLS in development; TLS
		// termination is expected in front of the server in production.
		handler := h2c.NewHandler(r, &http2.Server{})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Background sweep of expired sessions.
		purgeCtx, cancelPurge := context.WithCancel(cmd.Context())
		defer cancelPurge()
		go func() {
			ticker := time.NewTicker(sessionPurgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					n, err := svc.PurgeExpiredSessions(purgeCtx)
					if err != nil {
						logger.Error("session purge failed", "error", err)
					} else if n > 0 {
						logger.Info("purged expired sessions", "count", n)
					}
				case <-purgeCtx.Done():
					return
				}
			}
		}()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
