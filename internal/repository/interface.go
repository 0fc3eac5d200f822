package repository

import (
	"context"
	"errors"
	"time"

	"github.com/validome/accountd/internal/db/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert or update violates a
	// uniqueness constraint (e.g., two concurrent registrations racing on
	// the same username).
	ErrDuplicate = errors.New("already exists")
)

// DuplicateError identifies which field's uniqueness constraint was violated
// ("username" or "email"). It unwraps to ErrDuplicate, so existing
// errors.Is checks keep working.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return e.Field + " already exists" }

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// AccountRepository exposes persistence operations for accounts.
//
// Uniqueness semantics: UsernameExists/EmailExists only consider active
// (non-soft-deleted) accounts, so a deleted account's username may be reused
// by a new registration. The store backs this with partial unique indexes,
// which makes concurrent registrations race safely (one insert wins, the
// other surfaces ErrDuplicate).
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// GetByUsername returns the account regardless of active status.
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	Update(ctx context.Context, account *models.Account) error

	// UsernameExists reports whether an active account other than excludeID
	// holds the username. Pass excludeID=0 to consider all active accounts.
	UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error)

	// EmailExists reports whether an active account other than excludeID
	// holds the email. Pass excludeID=0 to consider all active accounts.
	EmailExists(ctx context.Context, email string, excludeID int64) (bool, error)

	ListActive(ctx context.Context) ([]models.Account, error)
	ListDeleted(ctx context.Context) ([]models.Account, error)

	// SoftDelete marks an active account deleted. Returns false when the
	// account does not exist or is already deleted.
	SoftDelete(ctx context.Context, id int64, now time.Time) (bool, error)

	// Restore reactivates a soft-deleted account. Returns false when the
	// account does not exist or is already active.
	Restore(ctx context.Context, id int64) (bool, error)

	// UpdateLastLogin records a successful sign-in timestamp and source
	// address without touching the rest of the row.
	UpdateLastLogin(ctx context.Context, id int64, ip string, now time.Time) error

	CountTotal(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
	CountDeleted(ctx context.Context) (int, error)
}

// SessionRepository exposes persistence operations for sign-in sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeByAccountID(ctx context.Context, accountID int64) error
	UpdateLastUsed(ctx context.Context, id string, now time.Time) error
	ListByAccountID(ctx context.Context, accountID int64) ([]models.Session, error)

	// DeleteExpired prunes sessions whose expiry is before the cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
