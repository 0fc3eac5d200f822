package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session tracks an active signed-in session for an account.
// Only the SHA-256 hash of the bearer token is stored; the raw token lives
// in the client's cookie (or Authorization header) and is never persisted.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        string `bun:"id,pk,type:uuid"`
	AccountID int64  `bun:"account_id,notnull"`
	TokenHash string `bun:"token_hash,notnull,unique"`

	// Remember marks long-lived "remember me" sessions, which get the
	// extended expiry at creation time.
	Remember  bool      `bun:"remember,notnull,default:false"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`

	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt time.Time `bun:"last_used_at,notnull,default:current_timestamp"`

	UserAgent *string `bun:"user_agent"`
	IPAddress *string `bun:"ip_address"`

	Revoked bool `bun:"revoked,notnull,default:false"`
}
