package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/validome/accountd/internal/db/models"
)

func TestLockoutPolicyLocksAtThreshold(t *testing.T) {
	t.Parallel()

	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	account := &models.Account{}

	// Remaining attempts count down from the post-increment counter: the
	// first failure leaves four, the fourth leaves one.
	for i, wantRemaining := range []int{4, 3, 2, 1} {
		state, remaining := policy.RecordFailure(account, now)
		assert.False(t, state.Locked, "failure %d", i+1)
		assert.Equal(t, wantRemaining, remaining, "failure %d", i+1)
	}

	state, remaining := policy.RecordFailure(account, now)
	assert.True(t, state.Locked)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, now.Add(15*time.Minute), state.Until)
	require.NotNil(t, account.LockoutEnd)
	assert.Equal(t, 5, account.FailedLoginAttempts)
}

func TestLockoutPolicyLazyUnlock(t *testing.T) {
	t.Parallel()

	policy := NewLockoutPolicy(5, 15*time.Minute)
	lockedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	account := &models.Account{}
	for i := 0; i < 5; i++ {
		policy.RecordFailure(account, lockedAt)
	}

	// Locked for the full window, unlocked exactly at expiry.
	assert.True(t, policy.State(account, lockedAt.Add(14*time.Minute+59*time.Second)).Locked)
	assert.False(t, policy.State(account, lockedAt.Add(15*time.Minute)).Locked)

	// A failure after expiry starts a fresh count instead of re-locking
	// off the stale counter.
	state, remaining := policy.RecordFailure(account, lockedAt.Add(16*time.Minute))
	assert.False(t, state.Locked)
	assert.Equal(t, 4, remaining)
	assert.Equal(t, 1, account.FailedLoginAttempts)
}

func TestLockoutPolicyRecordSuccessResets(t *testing.T) {
	t.Parallel()

	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Now()

	for _, priorFailures := range []int{0, 1, 4, 5, 17} {
		end := now.Add(time.Minute)
		account := &models.Account{FailedLoginAttempts: priorFailures, LockoutEnd: &end}
		policy.RecordSuccess(account)
		assert.Equal(t, 0, account.FailedLoginAttempts)
		assert.Nil(t, account.LockoutEnd)
	}
}

func TestLockStateRemaining(t *testing.T) {
	t.Parallel()

	now := time.Now()
	locked := LockState{Locked: true, Until: now.Add(10 * time.Minute)}
	assert.Equal(t, 10*time.Minute, locked.Remaining(now))
	assert.Equal(t, time.Duration(0), LockState{}.Remaining(now))
}

func TestNewLockoutPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy := NewLockoutPolicy(0, 0)
	assert.Equal(t, DefaultLockoutThreshold, policy.Threshold)
	assert.Equal(t, DefaultLockoutDuration, policy.Duration)
}
