package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/validome/accountd/internal/repository"
	"github.com/validome/accountd/internal/services/identity"
)

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Fields carries per-field validation failures, keyed by field name.
	Fields map[string]string `json:"fields,omitempty"`
	// AttemptsRemaining is set on failed logins while the account is still
	// below the lockout threshold.
	AttemptsRemaining *int `json:"attempts_remaining,omitempty"`
	// LockedUntil is the lockout expiry as a Unix timestamp, set when the
	// account is locked out.
	LockedUntil *int64 `json:"locked_until,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError translates identity service errors into HTTP responses.
// Unknown username and wrong password share one message and status so the
// API does not reveal which accounts exist.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *identity.ValidationError
	if errors.As(err, &vErr) {
		fields := make(map[string]string, len(vErr.Fields))
		for _, f := range vErr.Fields {
			fields[f.Field] = f.Reason
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: fields,
		})
		return
	}

	var lockErr *identity.LockedError
	if errors.As(err, &lockErr) {
		until := lockErr.Until.UTC().Unix()
		writeJSON(w, http.StatusLocked, ErrorResponse{
			Error:       "account is locked out",
			LockedUntil: &until,
		})
		return
	}

	var credErr *identity.InvalidCredentialsError
	if errors.As(err, &credErr) {
		remaining := credErr.AttemptsRemaining
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:             "invalid username or password",
			AttemptsRemaining: &remaining,
		})
		return
	}

	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, identity.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account is locked out")
	case errors.Is(err, identity.ErrAccountInactive):
		writeError(w, http.StatusForbidden, "account is inactive")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
