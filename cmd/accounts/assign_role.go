package accounts

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/validome/accountd/internal/db/bunx"
)

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role <account-id> <role>",
	Short: "Assign a role to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid account id %q", args[0])
		}

		svc, db, err := newIdentityService()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		if err := svc.AssignRole(cmd.Context(), id, args[1]); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}

		fmt.Printf("Account %d now has role %s\n", id, args[1])
		return nil
	},
}
