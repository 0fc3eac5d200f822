package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary
// keys. Time ordering keeps inserts append-friendly on both PostgreSQL and
// SQLite indexes. Panics only on entropy exhaustion, at which point no ID
// generation would succeed anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
