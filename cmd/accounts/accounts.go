package accounts

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/validome/accountd/internal/config"
	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/repository"
	"github.com/validome/accountd/internal/services/identity"
)

// AccountsCmd groups the account administration subcommands.
var AccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Account administration commands",
	Long:  `Commands for managing accounts directly against the database, bypassing the HTTP API.`,
}

func init() {
	AccountsCmd.AddCommand(createCmd)
	AccountsCmd.AddCommand(listCmd)
	AccountsCmd.AddCommand(assignRoleCmd)
	AccountsCmd.AddCommand(purgeSessionsCmd)
}

// newIdentityService loads config, opens the database, and builds the
// identity service for one-shot CLI operations. The caller must close db.
func newIdentityService() (identity.Service, *bun.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := bunx.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	svc, err := identity.NewService(identity.Dependencies{
		Accounts:    repository.NewBunAccountRepository(db),
		Sessions:    repository.NewBunSessionRepository(db),
		Hasher:      identity.NewBcryptHasher(cfg.BcryptCost),
		Lockout:     identity.NewLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutDuration),
		SessionTTL:  cfg.SessionTTL,
		RememberTTL: cfg.RememberSessionTTL,
	})
	if err != nil {
		bunx.Close(db)
		return nil, nil, fmt.Errorf("create identity service: %w", err)
	}
	return svc, db, nil
}
