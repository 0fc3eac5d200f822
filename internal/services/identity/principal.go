package identity

import (
	"sort"
	"time"

	"github.com/validome/accountd/internal/db/models"
)

// Permission tokens. Account records carry a free-form permission set;
// these are the tokens the bundled policies know about.
const (
	PermEditUsers        = "users.edit"
	PermDeleteUsers      = "users.delete"
	PermViewUsers        = "users.view"
	PermViewDeletedUsers = "users.view-deleted"
	PermRestoreUsers     = "users.restore"

	PermViewProfile = "profile.view"
	PermEditProfile = "profile.edit"
)

// DefaultPermissions is the permission set granted at registration.
var DefaultPermissions = []string{PermViewProfile, PermEditProfile}

// adminBundle is the capability superset implied by the Admin role,
// granted on top of whatever is stored on the account.
var adminBundle = []string{
	PermEditUsers,
	PermDeleteUsers,
	PermViewUsers,
	PermViewDeletedUsers,
	PermRestoreUsers,
}

// Principal is the immutable identity snapshot built from an account at
// sign-in time. It does not track later account changes; a session
// re-establish rebuilds it.
type Principal struct {
	AccountID  int64
	Username   string
	Email      string
	Role       models.Role
	Department string
	Age        int

	// SessionID references the backing session row when the principal was
	// resolved from a session credential. Empty for token-only requests.
	SessionID string

	permissions map[string]struct{}
}

// BuildPrincipal assembles a principal from a validated account. Admin
// accounts receive the administrative capability bundle in addition to
// their stored permissions; other roles get exactly what is stored.
func BuildPrincipal(account *models.Account, now time.Time) *Principal {
	perms := account.PermissionSet()
	if account.Role == models.RoleAdmin {
		for _, p := range adminBundle {
			perms[p] = struct{}{}
		}
	}

	p := &Principal{
		AccountID:   account.ID,
		Username:    account.Username,
		Email:       account.Email,
		Role:        account.Role,
		Age:         account.Age(now),
		permissions: perms,
	}
	if account.Department != nil {
		p.Department = *account.Department
	}
	return p
}

// NewPrincipal assembles a principal from already-expanded attributes.
// Used when rehydrating identity from a signed token, where the permission
// set was expanded (admin bundle included) at issue time.
func NewPrincipal(accountID int64, username, email string, role models.Role, permissions []string) *Principal {
	perms := make(map[string]struct{}, len(permissions))
	for _, token := range permissions {
		perms[token] = struct{}{}
	}
	return &Principal{
		AccountID:   accountID,
		Username:    username,
		Email:       email,
		Role:        role,
		permissions: perms,
	}
}

// HasPermission reports whether the token is present in the principal's
// permission set (exact string match).
func (p *Principal) HasPermission(token string) bool {
	_, ok := p.permissions[token]
	return ok
}

// Permissions returns a sorted copy of the permission set. Mutating the
// result does not affect the principal.
func (p *Principal) Permissions() []string {
	out := make([]string, 0, len(p.permissions))
	for token := range p.permissions {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// IsAdmin reports whether the principal holds the Admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// WithSession returns a copy of the principal bound to a session row.
func (p *Principal) WithSession(sessionID string) *Principal {
	clone := *p
	clone.SessionID = sessionID
	return &clone
}
