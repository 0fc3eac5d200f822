package identity

import (
	"context"

	"github.com/validome/accountd/internal/db/models"
)

// Service provides the account and authentication operations.
//
// It centralizes:
//   - Credential authentication (login path, lockout enforced)
//   - Session management (login/logout, opaque bearer tokens)
//   - Account lifecycle (register, update, soft delete, restore)
//   - Role and permission assignment (admin operations)
type Service interface {
	// AuthenticateCredentials validates a username/password pair.
	//
	// Check order is deliberate: account existence, then lockout, then
	// active status, then the password. Lockout is reported before the
	// password is even verified, so presenting garbage credentials cannot
	// bypass the lock. The sourceIP is recorded as the last-login address
	// on success.
	//
	// Returns:
	//   - (principal, nil): credentials accepted, counter reset
	//   - (nil, ErrInvalidCredentials / *InvalidCredentialsError): unknown
	//     username or wrong password
	//   - (nil, *LockedError): account locked, carries the expiry
	//   - (nil, ErrAccountInactive): soft-deleted or deactivated account
	AuthenticateCredentials(ctx context.Context, username, password, sourceIP string) (*Principal, error)

	// Register creates a new active account with the User role and the
	// default permission set. Field failures and duplicate username/email
	// surface as *ValidationError.
	Register(ctx context.Context, in RegistrationInput) (*models.Account, error)

	// UpdateAccount updates an active account's profile. A non-blank
	// NewPassword re-hashes the credential. Duplicate username/email
	// checks exclude the account itself.
	UpdateAccount(ctx context.Context, in UpdateInput) (*models.Account, error)

	// GetAccountByID retrieves an account regardless of status.
	// Returns repository.ErrNotFound when absent.
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)

	// ListActiveAccounts returns active accounts, newest first.
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)

	// ListDeletedAccounts returns soft-deleted accounts.
	ListDeletedAccounts(ctx context.Context) ([]models.Account, error)

	// AccountCounts reports the total/active/deleted account tallies.
	AccountCounts(ctx context.Context) (AccountCounts, error)

	// DeleteAccount soft-deletes an active account and revokes its
	// sessions. Returns repository.ErrNotFound when the account does not
	// exist or is already deleted.
	DeleteAccount(ctx context.Context, id int64) error

	// RestoreAccount reactivates a soft-deleted account.
	RestoreAccount(ctx context.Context, id int64) error

	// AssignRole sets an account's role. Unrecognized role names are
	// rejected with *ValidationError, never coerced.
	AssignRole(ctx context.Context, id int64, roleName string) error

	// AssignPermissions replaces an account's stored permission set.
	AssignPermissions(ctx context.Context, id int64, permissions []string) error

	// CreateSession mints a session for an authenticated account and
	// returns the unhashed bearer token exactly once; only its SHA-256
	// hash is stored. Remember-me sessions use the longer TTL.
	CreateSession(ctx context.Context, accountID int64, remember bool, userAgent, sourceIP string) (*models.Session, string, error)

	// ResolveSession authenticates an opaque session token. Expired or
	// revoked sessions and inactive accounts resolve to an error; a live
	// session yields the account's current principal bound to the session.
	ResolveSession(ctx context.Context, token string) (*Principal, error)

	// RevokeSession invalidates a single session by ID.
	RevokeSession(ctx context.Context, sessionID string) error

	// RevokeAccountSessions invalidates every live session of an account.
	RevokeAccountSessions(ctx context.Context, accountID int64) error

	// PurgeExpiredSessions deletes sessions past their expiry and reports
	// how many were removed.
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// AccountCounts summarizes the account population.
type AccountCounts struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Deleted int `json:"deleted"`
}
