package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Role is the closed set of roles an account can hold. Role names are
// validated on assignment via ParseRole; raw string comparison against
// arbitrary input is never used for authorization decisions.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
)

// Roles lists every valid role, in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser}
}

// ParseRole validates a role name against the closed role set.
// Matching is exact; "admin" is not RoleAdmin.
func ParseRole(name string) (Role, bool) {
	switch Role(name) {
	case RoleAdmin, RoleManager, RoleUser:
		return Role(name), true
	}
	return "", false
}

// Account represents a registered user record, including credentials,
// role/permission assignments, lockout state, and soft-delete status.
//
// Soft-deleted accounts keep their row (IsActive=false, DeletedAt set) and
// are excluded from active listings and from username/email uniqueness
// checks. Restoring flips the account back to active.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Username     string `bun:"username,notnull"`
	Email        string `bun:"email,notnull"`
	PasswordHash string `bun:"password_hash,notnull"`

	DateOfBirth time.Time `bun:"date_of_birth"`
	Gender      string    `bun:"gender"`
	PhoneNumber string    `bun:"phone_number"`
	Country     string    `bun:"country"`
	Website     string    `bun:"website"`
	Department  *string   `bun:"department"`
	Newsletter  bool      `bun:"newsletter,notnull,default:false"`

	Role        Role   `bun:"role,notnull,default:'User'"`
	Permissions string `bun:"permissions"` // comma-separated permission tokens

	IsActive  bool       `bun:"is_active,notnull,default:true"`
	DeletedAt *time.Time `bun:"deleted_at"`

	FailedLoginAttempts int        `bun:"failed_login_attempts,notnull,default:0"`
	LockoutEnd          *time.Time `bun:"lockout_end"`

	LastLoginAt *time.Time `bun:"last_login_at"`
	LastLoginIP *string    `bun:"last_login_ip"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Age derives the account holder's age in whole years at the given instant.
// Returns 0 when no date of birth is recorded.
func (a *Account) Age(now time.Time) int {
	if a.DateOfBirth.IsZero() {
		return 0
	}
	years := now.Year() - a.DateOfBirth.Year()
	anniversary := a.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// PermissionSet expands the stored comma-separated permission string into a
// set. Blank entries and surrounding whitespace are dropped.
func (a *Account) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Split(a.Permissions, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// JoinPermissions renders a permission token list into the stored
// comma-separated form, skipping blanks.
func JoinPermissions(tokens []string) string {
	cleaned := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			cleaned = append(cleaned, tok)
		}
	}
	return strings.Join(cleaned, ",")
}
