package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/validome/accountd/internal/db/models"
)

// BunSessionRepository implements SessionRepository using Bun ORM.
type BunSessionRepository struct {
	db *bun.DB
}

var _ SessionRepository = (*BunSessionRepository)(nil)

// NewBunSessionRepository creates a new Bun-based session repository.
func NewBunSessionRepository(db *bun.DB) *BunSessionRepository {
	return &BunSessionRepository{db: db}
}

// Create inserts a new session row.
func (r *BunSessionRepository) Create(ctx context.Context, session *models.Session) error {
	_, err := r.db.NewInsert().
		Model(session).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByTokenHash looks up a session by the SHA-256 hash of its opaque token.
// Revoked and expired rows are still returned; liveness is the caller's call.
func (r *BunSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("token_hash = ?", tokenHash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get session by token hash: %w", err)
	}
	return session, nil
}

// Revoke marks a single session revoked.
func (r *BunSessionRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RevokeByAccountID revokes every live session belonging to an account.
func (r *BunSessionRepository) RevokeByAccountID(ctx context.Context, accountID int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked = ?", true).
		Where("account_id = ?", accountID).
		Where("revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke sessions for account: %w", err)
	}
	return nil
}

// UpdateLastUsed bumps a session's last-used timestamp.
func (r *BunSessionRepository) UpdateLastUsed(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.Session)(nil)).
		Set("last_used_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session last used: %w", err)
	}
	return nil
}

// ListByAccountID returns an account's sessions, newest first.
func (r *BunSessionRepository) ListByAccountID(ctx context.Context, accountID int64) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.NewSelect().
		Model(&sessions).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions for account: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes sessions whose expiry is before the cutoff and
// reports how many rows were deleted.
func (r *BunSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected, nil
}
