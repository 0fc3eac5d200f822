package accounts

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/validome/accountd/internal/db/bunx"
)

var purgeSessionsCmd = &cobra.Command{
	Use:   "purge-sessions",
	Short: "Delete expired sessions",
	Long:  `Removes sessions past their expiry from the store. Expired sessions are already rejected at login; this reclaims storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, err := newIdentityService()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		n, err := svc.PurgeExpiredSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to purge sessions: %w", err)
		}

		fmt.Printf("Purged %d expired sessions\n", n)
		return nil
	},
}
