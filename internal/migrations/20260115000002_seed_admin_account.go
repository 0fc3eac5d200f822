package migrations

import (
	"context"
	"fmt"
	"os"

	"github.com/uptrace/bun"
	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	Migrations.MustRegister(up_20260115000002, down_20260115000002)
}

// up_20260115000002 seeds the default admin account
func up_20260115000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding admin account...")

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "Admin@123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), identity.DefaultBcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := models.Account{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Permissions:  models.JoinPermissions(identity.DefaultPermissions),
		IsActive:     true,
	}

	// Idempotent: the partial unique index on active usernames absorbs reruns
	_, err = db.NewInsert().
		Model(&admin).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260115000002 removes the seeded admin account
func down_20260115000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing admin account...")

	_, err := db.NewDelete().
		Model((*models.Account)(nil)).
		Where("username = ?", "admin").
		Where("email = ?", "admin@example.com").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove admin account: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
