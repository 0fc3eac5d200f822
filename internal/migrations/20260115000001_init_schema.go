package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/validome/accountd/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260115000001, down_20260115000001)
}

// up_20260115000001 creates the accounts and sessions tables
func up_20260115000001(ctx context.Context, db *bun.DB) error {
	// 1. Create accounts table
	fmt.Print(" [up] creating accounts table...")
	_, err := db.NewCreateTable().
		Model((*models.Account)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	// Username and email must be unique among active accounts only, so a
	// soft-deleted account does not block re-registration of its name.
	// Partial index predicates differ between backends: SQLite compares the
	// boolean column against 1.
	activePredicate := "is_active"
	if IsSQLite(db) {
		activePredicate = "is_active = 1"
	}
	_, err = db.Exec(fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username_active
		ON accounts (username) WHERE %s
	`, activePredicate))
	if err != nil {
		return fmt.Errorf("failed to create unique index on active usernames: %w", err)
	}
	_, err = db.Exec(fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email_active
		ON accounts (email) WHERE %s
	`, activePredicate))
	if err != nil {
		return fmt.Errorf("failed to create unique index on active emails: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_accounts_is_active ON accounts(is_active)`)
	if err != nil {
		return fmt.Errorf("failed to create index on is_active: %w", err)
	}

	// Role check constraint keeps the closed role set honest at the storage
	// layer. SQLite does not support ADD CONSTRAINT in ALTER TABLE.
	if IsPostgreSQL(db) {
		_, err = db.Exec(`
			ALTER TABLE accounts
			ADD CONSTRAINT accounts_role_check CHECK (role IN ('Admin', 'Manager', 'User'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add role check constraint: %w", err)
		}
	}
	fmt.Println(" OK")

	// 2. Create sessions table
	fmt.Print(" [up] creating sessions table...")
	q := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists()

	// For SQLite, define FKs during table creation
	if IsSQLite(db) {
		q = q.ForeignKey(`(account_id) REFERENCES accounts(id) ON DELETE CASCADE`)
	}
	_, err = q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token_hash
		ON sessions(token_hash)
	`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on token_hash: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on account_id: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index on expires_at: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260115000001 drops the accounts and sessions tables
func down_20260115000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping sessions table...")
	_, err := db.NewDropTable().
		Model((*models.Session)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop sessions table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] dropping accounts table...")
	_, err = db.NewDropTable().
		Model((*models.Account)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop accounts table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
