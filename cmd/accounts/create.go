package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
)

var (
	usernameFlag string
	emailFlag    string
	passwordFlag string
	stdinFlag    bool
	roleFlag     string
	dobFlag      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		role := models.RoleUser
		if roleFlag != "" {
			parsed, ok := models.ParseRole(roleFlag)
			if !ok {
				return fmt.Errorf("unknown role %q (valid: %v)", roleFlag, models.Roles())
			}
			role = parsed
		}

		var dob time.Time
		if dobFlag != "" {
			parsed, err := time.Parse("2006-01-02", dobFlag)
			if err != nil {
				return fmt.Errorf("invalid --dob (expected YYYY-MM-DD): %w", err)
			}
			dob = parsed
		}

		svc, db, err := newIdentityService()
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		ctx := cmd.Context()
		account, err := svc.Register(ctx, identity.RegistrationInput{
			Username:        usernameFlag,
			Email:           emailFlag,
			Password:        password,
			ConfirmPassword: password,
			DateOfBirth:     dob,
		})
		if err != nil {
			var vErr *identity.ValidationError
			if errors.As(err, &vErr) {
				for _, f := range vErr.Fields {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Reason)
				}
			}
			return fmt.Errorf("failed to create account: %w", err)
		}

		if role != models.RoleUser {
			if err := svc.AssignRole(ctx, account.ID, string(role)); err != nil {
				return fmt.Errorf("account created but role assignment failed: %w", err)
			}
		}

		fmt.Printf("Created account %d (%s, role %s)\n", account.ID, account.Username, role)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username (required)")
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address (required)")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password (prefer --stdin)")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin")
	createCmd.Flags().StringVar(&roleFlag, "role", "", "Role to assign (Admin, Manager, User; default User)")
	createCmd.Flags().StringVar(&dobFlag, "dob", "", "Date of birth (YYYY-MM-DD)")
}
