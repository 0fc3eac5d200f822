package identity

import (
	"time"

	"github.com/validome/accountd/internal/db/models"
)

const (
	// DefaultLockoutThreshold is the failed-attempt count that locks an account.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockState describes an account's lock status at a point in time.
// Locks expire lazily: the state is derived at check time from the stored
// lockout expiry, no background job clears it.
type LockState struct {
	Locked bool
	// Until is the lock expiry. Zero when not locked.
	Until time.Time
}

// Remaining returns how long the lock still holds at the given instant.
func (s LockState) Remaining(now time.Time) time.Duration {
	if !s.Locked {
		return 0
	}
	return s.Until.Sub(now)
}

// LockoutPolicy decides when repeated authentication failures lock an
// account and for how long. Lockout is account-scoped, not IP-scoped.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy creates a policy, substituting defaults for
// non-positive values.
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{Threshold: threshold, Duration: duration}
}

// State derives the account's lock status at the given instant. An expired
// lockout expiry counts as unlocked even though the stored timestamp is
// still set.
func (p LockoutPolicy) State(account *models.Account, now time.Time) LockState {
	if account.LockoutEnd != nil && account.LockoutEnd.After(now) {
		return LockState{Locked: true, Until: *account.LockoutEnd}
	}
	return LockState{}
}

// RecordFailure registers a failed authentication attempt, mutating the
// account's counter in place (the caller persists it). A counter left over
// from an expired lock restarts at zero first, so a stale lock cannot
// re-trigger on the next single failure.
//
// Returns the resulting lock state and the attempts remaining before the
// account locks. Remaining is computed from the post-increment count, so
// the fourth failure under the default policy reports one attempt
// remaining and the fifth locks.
func (p LockoutPolicy) RecordFailure(account *models.Account, now time.Time) (LockState, int) {
	if account.LockoutEnd != nil && !account.LockoutEnd.After(now) {
		account.FailedLoginAttempts = 0
		account.LockoutEnd = nil
	}

	account.FailedLoginAttempts++

	if account.FailedLoginAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		account.LockoutEnd = &until
		return LockState{Locked: true, Until: until}, 0
	}
	return LockState{}, p.Threshold - account.FailedLoginAttempts
}

// RecordSuccess clears the failure counter and any lock after a
// successful authentication.
func (p LockoutPolicy) RecordSuccess(account *models.Account) {
	account.FailedLoginAttempts = 0
	account.LockoutEnd = nil
}
