package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/middleware"
	"github.com/validome/accountd/internal/services/identity"
)

// Handlers bundles the HTTP handlers with their dependencies.
type Handlers struct {
	Identity      identity.Service
	Tokens        *auth.TokenIssuer
	Authenticator *middleware.Authenticator
	SecureCookies bool
}

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	DateOfBirth     string `json:"date_of_birth"` // YYYY-MM-DD
	Gender          string `json:"gender"`
	PhoneNumber     string `json:"phone_number"`
	Country         string `json:"country"`
	Website         string `json:"website"`
	Newsletter      bool   `json:"newsletter"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// PrincipalResponse describes the authenticated account in API responses.
type PrincipalResponse struct {
	AccountID   int64    `json:"account_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Department  string   `json:"department,omitempty"`
	Permissions []string `json:"permissions"`
}

// LoginResponse is the body for a successful POST /auth/login. Token is a
// bearer JWT for API clients; browser clients rely on the session cookie.
type LoginResponse struct {
	User      PrincipalResponse `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt int64             `json:"expires_at"`
}

func principalResponse(p *identity.Principal) PrincipalResponse {
	return PrincipalResponse{
		AccountID:   p.AccountID,
		Username:    p.Username,
		Email:       p.Email,
		Role:        string(p.Role),
		Department:  p.Department,
		Permissions: p.Permissions(),
	}
}

// HandleRegister creates a new account from a registration form.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := identity.RegistrationInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Gender:          req.Gender,
		PhoneNumber:     req.PhoneNumber,
		Country:         req.Country,
		Website:         req.Website,
		Newsletter:      req.Newsletter,
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

	account, err := h.Identity.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse(account))
}

// HandleLogin authenticates credentials, establishes a session cookie, and
// returns a bearer JWT for API clients.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	}

	ctx := r.Context()
	principal, err := h.Identity.AuthenticateCredentials(ctx, req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	session, token, err := h.Identity.CreateSession(ctx, principal.AccountID, req.Remember, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	resp := LoginResponse{
		User:      principalResponse(principal),
		ExpiresAt: session.ExpiresAt.Unix(),
	}
	if h.Tokens != nil {
		jwt, err := h.Tokens.Issue(principal)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		resp.Token = jwt
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout revokes the caller's session and clears the cookie. The
// session cache entry is evicted so revocation takes effect immediately.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.SessionID == "" {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	if err := h.Identity.RevokeSession(r.Context(), principal.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && h.Authenticator != nil {
		h.Authenticator.Forget(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// HandleWhoAmI reports the authenticated principal.
func (h *Handlers) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, principalResponse(principal))
}
