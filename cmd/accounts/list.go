package accounts

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/db/models"
)

var deletedFlag bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, db, err := newIdentityService()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		var accounts []models.Account
		if deletedFlag {
			accounts, err = svc.ListDeletedAccounts(ctx)
		} else {
			accounts, err = svc.ListActiveAccounts(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts found")
			return nil
		}
		for _, a := range accounts {
			status := "active"
			if !a.IsActive {
				status = "deleted"
			}
			fmt.Printf("%6d  %-12s %-30s %-8s %s\n", a.ID, a.Username, a.Email, a.Role, status)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&deletedFlag, "deleted", false, "List soft-deleted accounts instead of active ones")
}
