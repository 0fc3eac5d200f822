package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/validome/accountd/internal/db/models"
)

// BunAccountRepository implements AccountRepository using Bun ORM.
type BunAccountRepository struct {
	db *bun.DB
}

var _ AccountRepository = (*BunAccountRepository)(nil)

// NewBunAccountRepository creates a new Bun-based account repository.
func NewBunAccountRepository(db *bun.DB) *BunAccountRepository {
	return &BunAccountRepository{db: db}
}

// Create inserts a new account. Returns ErrDuplicate when the username or
// email collides with another active account (partial unique index).
func (r *BunAccountRepository) Create(ctx context.Context, account *models.Account) error {
	_, err := r.db.NewInsert().
		Model(account).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create account: %w", duplicateError(err))
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its ID, regardless of active status.
func (r *BunAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get account by ID: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by exact username match, regardless of
// active status. When an active and a soft-deleted account share the name,
// the active one wins.
func (r *BunAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("username = ?", username).
		OrderExpr("is_active DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return account, nil
}

// Update persists all columns of an existing account.
func (r *BunAccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update account: %w", duplicateError(err))
		}
		return fmt.Errorf("update account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %d: %w", account.ID, ErrNotFound)
	}
	return nil
}

// UsernameExists checks username availability among active accounts only.
func (r *BunAccountRepository) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	q := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("username = ?", username).
		Where("is_active = ?", true)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}
	return exists, nil
}

// EmailExists checks email availability among active accounts only.
func (r *BunAccountRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	q := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("email = ?", email).
		Where("is_active = ?", true)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// ListActive returns all active accounts, newest first.
func (r *BunAccountRepository) ListActive(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	return accounts, nil
}

// ListDeleted returns all soft-deleted accounts, most recently deleted first.
func (r *BunAccountRepository) ListDeleted(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Where("is_active = ?", false).
		Order("deleted_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deleted accounts: %w", err)
	}
	return accounts, nil
}

// SoftDelete marks an active account deleted. The WHERE clause on is_active
// makes concurrent deletes idempotent at the store level.
func (r *BunAccountRepository) SoftDelete(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("is_active = ?", false).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("soft delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Restore reactivates a soft-deleted account and clears its deletion mark.
func (r *BunAccountRepository) Restore(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("is_active = ?", true).
		Set("deleted_at = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("is_active = ?", false).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("restore account: %w", duplicateError(err))
		}
		return false, fmt.Errorf("restore account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateLastLogin records the timestamp and source address of a successful
// sign-in.
func (r *BunAccountRepository) UpdateLastLogin(ctx context.Context, id int64, ip string, now time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("last_login_at = ?", now).
		Set("last_login_ip = ?", ip).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// CountTotal returns the number of accounts, deleted included.
func (r *BunAccountRepository) CountTotal(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

// CountActive returns the number of active accounts.
func (r *BunAccountRepository) CountActive(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("is_active = ?", true).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count active accounts: %w", err)
	}
	return count, nil
}

// CountDeleted returns the number of soft-deleted accounts.
func (r *BunAccountRepository) CountDeleted(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("is_active = ?", false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count deleted accounts: %w", err)
	}
	return count, nil
}

// isUniqueViolation detects uniqueness errors from both supported backends
// (pgdriver and modernc sqlite report them as plain error strings).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// duplicateError attributes a uniqueness violation to the column named in the
// violated index (both backends quote the index name, and ours carry the
// column: idx_accounts_username_active / idx_accounts_email_active).
func duplicateError(err error) error {
	field := "username"
	if strings.Contains(err.Error(), "email") {
		field = "email"
	}
	return &DuplicateError{Field: field}
}
