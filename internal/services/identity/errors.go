package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Authentication errors are user-facing rejections, never crashes. The
// generic ErrInvalidCredentials deliberately does not distinguish an
// unknown username from a wrong password.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account has been deactivated")
	ErrAccountLocked      = errors.New("account locked")
)

// InvalidCredentialsError is a wrong-password rejection annotated with the
// attempts remaining before lockout. errors.Is matches it against
// ErrInvalidCredentials.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid username or password (%d attempts remaining)", e.AttemptsRemaining)
}

func (e *InvalidCredentialsError) Unwrap() error { return ErrInvalidCredentials }

// LockedError reports an account lock and when it expires. errors.Is
// matches it against ErrAccountLocked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// Remaining returns the lock duration still in effect at the given instant.
func (e *LockedError) Remaining(now time.Time) time.Duration {
	return e.Until.Sub(now)
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError aggregates field-level failures from a registration or
// update request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field failure.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// AsValidationError unwraps err into a ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
