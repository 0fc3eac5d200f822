package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
)

// AccountResponse describes an account record in API responses. The
// password hash and lockout counters never leave the service.
type AccountResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Country     string   `json:"country,omitempty"`
	Website     string   `json:"website,omitempty"`
	Department  *string  `json:"department,omitempty"`
	Newsletter  bool     `json:"newsletter"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	DeletedAt   *int64   `json:"deleted_at,omitempty"`
	LastLoginAt *int64   `json:"last_login_at,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

func accountResponse(a *models.Account) AccountResponse {
	resp := AccountResponse{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		Gender:      a.Gender,
		PhoneNumber: a.PhoneNumber,
		Country:     a.Country,
		Website:     a.Website,
		Department:  a.Department,
		Newsletter:  a.Newsletter,
		Role:        string(a.Role),
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt.Unix(),
	}
	if !a.DateOfBirth.IsZero() {
		resp.DateOfBirth = a.DateOfBirth.Format("2006-01-02")
	}
	if a.DeletedAt != nil {
		ts := a.DeletedAt.Unix()
		resp.DeletedAt = &ts
	}
	if a.LastLoginAt != nil {
		ts := a.LastLoginAt.Unix()
		resp.LastLoginAt = &ts
	}
	perms := a.PermissionSet()
	resp.Permissions = make([]string, 0, len(perms))
	for tok := range perms {
		resp.Permissions = append(resp.Permissions, tok)
	}
	sort.Strings(resp.Permissions)
	return resp
}

func accountListResponse(accounts []models.Account) []AccountResponse {
	out := make([]AccountResponse, len(accounts))
	for i := range accounts {
		out[i] = accountResponse(&accounts[i])
	}
	return out
}

func accountID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// UpdateAccountRequest is the JSON body for PUT /api/accounts/{id}.
type UpdateAccountRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	NewPassword string  `json:"new_password"`
	DateOfBirth string  `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	PhoneNumber string  `json:"phone_number"`
	Country     string  `json:"country"`
	Website     string  `json:"website"`
	Department  *string `json:"department"`
	Newsletter  bool    `json:"newsletter"`
}

// AssignRoleRequest is the JSON body for PUT /api/accounts/{id}/role.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// AssignPermissionsRequest is the JSON body for
// PUT /api/accounts/{id}/permissions.
type AssignPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// HandleListAccounts lists active accounts.
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Identity.ListActiveAccounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountListResponse(accounts))
}

// HandleListDeletedAccounts lists soft-deleted accounts.
func (h *Handlers) HandleListDeletedAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Identity.ListDeletedAccounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountListResponse(accounts))
}

// HandleAccountStats reports account population counts.
func (h *Handlers) HandleAccountStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Identity.AccountCounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// HandleGetAccount fetches a single account.
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	account, err := h.Identity.GetAccountByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(account))
}

// HandleUpdateAccount updates an account's profile.
func (h *Handlers) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := identity.UpdateInput{
		ID:          id,
		Username:    req.Username,
		Email:       req.Email,
		NewPassword: req.NewPassword,
		Gender:      req.Gender,
		PhoneNumber: req.PhoneNumber,
		Country:     req.Country,
		Website:     req.Website,
		Department:  req.Department,
		Newsletter:  req.Newsletter,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{"date_of_birth": "must be a date in YYYY-MM-DD form"},
			})
			return
		}
		in.DateOfBirth = dob
	}

	account, err := h.Identity.UpdateAccount(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(account))
}

// HandleDeleteAccount soft-deletes an account and revokes its sessions.
func (h *Handlers) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := h.Identity.DeleteAccount(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRestoreAccount reactivates a soft-deleted account.
func (h *Handlers) HandleRestoreAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := h.Identity.RestoreAccount(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	account, err := h.Identity.GetAccountByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(account))
}

// HandleAssignRole sets an account's role.
func (h *Handlers) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Identity.AssignRole(r.Context(), id, req.Role); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignPermissions replaces an account's stored permission set.
func (h *Handlers) HandleAssignPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req AssignPermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Identity.AssignPermissions(r.Context(), id, req.Permissions); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
