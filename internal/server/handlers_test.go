package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/middleware"
	"github.com/validome/accountd/internal/migrations"
	"github.com/validome/accountd/internal/repository"
	"github.com/validome/accountd/internal/services/identity"
)

// testEnv wires a real identity service over in-memory SQLite, with the
// schema and admin seed applied through the actual migrations.
type testEnv struct {
	router   http.Handler
	identity identity.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	svc, err := identity.NewService(identity.Dependencies{
		Accounts: repository.NewBunAccountRepository(db),
		Sessions: repository.NewBunSessionRepository(db),
		Hasher:   identity.NewBcryptHasher(bcrypt.MinCost),
	})
	require.NoError(t, err)

	// The seeded admin carries a default-cost hash; rewrite it at MinCost
	// so login-heavy tests stay fast.
	hash, err := bcrypt.GenerateFromPassword([]byte("Admin@123"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = db.NewUpdate().
		Table("accounts").
		Set("password_hash = ?", string(hash)).
		Where("username = ?", "admin").
		Exec(ctx)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)

	authn, err := middleware.NewAuthenticator(middleware.AuthnDependencies{
		Identity: svc,
		Tokens:   tokens,
	})
	require.NoError(t, err)

	policies, err := identity.DefaultPolicySet()
	require.NoError(t, err)
	authz, err := middleware.NewAuthorizer(policies)
	require.NoError(t, err)

	router := NewRouter(RouterOptions{
		Identity:      svc,
		Tokens:        tokens,
		Authenticator: authn,
		Authorizer:    authz,
	})

	return &testEnv{router: router, identity: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func registrationBody(username, email string) RegisterRequest {
	return RegisterRequest{
		Username:        username,
		Email:           email,
		Password:        "Secret1!",
		ConfirmPassword: "Secret1!",
		DateOfBirth:     "1992-05-10",
	}
}

// login returns the session cookie and the bearer JWT for the credentials.
func (e *testEnv) login(t *testing.T, username, password string) (*http.Cookie, string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, "login failed: %s", rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login response missing session cookie")

	resp := decodeBody[LoginResponse](t, rec)
	require.NotEmpty(t, resp.Token)
	return cookie, resp.Token
}

func TestRegister(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("alice", "alice@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[AccountResponse](t, rec)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "User", created.Role)
	assert.ElementsMatch(t, []string{"profile.view", "profile.edit"}, created.Permissions)

	// Same username again is a validation failure, not a 500.
	rec = env.do(t, http.MethodPost, "/auth/register", registrationBody("alice", "other@example.com"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "username")
}

func TestRegisterFieldValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	body := RegisterRequest{
		Username:        "ab", // too short
		Email:           "not-an-email",
		Password:        "short",
		ConfirmPassword: "different",
		DateOfBirth:     "2020-01-01", // under 18
	}
	rec := env.do(t, http.MethodPost, "/auth/register", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "username")
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
}

func TestLoginAndWhoAmI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cookie, token := env.login(t, "admin", "Admin@123")

	// Session cookie path
	rec := env.do(t, http.MethodGet, "/api/auth/whoami", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	who := decodeBody[PrincipalResponse](t, rec)
	assert.Equal(t, "admin", who.Username)
	assert.Equal(t, "Admin", who.Role)
	assert.Contains(t, who.Permissions, identity.PermViewDeletedUsers)

	// Bearer token path
	req := httptest.NewRequest(http.MethodGet, "/api/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	bearerRec := httptest.NewRecorder()
	env.router.ServeHTTP(bearerRec, req)
	require.Equal(t, http.StatusOK, bearerRec.Code)

	// No credentials at all
	rec = env.do(t, http.MethodGet, "/api/auth/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailureReportsAttemptsRemaining(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "admin", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	require.NotNil(t, resp.AttemptsRemaining)
	assert.Equal(t, 4, *resp.AttemptsRemaining)

	// Unknown usernames get the same message with no attempt counter, so
	// responses do not reveal which accounts exist.
	rec = env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "nobody", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp = decodeBody[ErrorResponse](t, rec)
	assert.Nil(t, resp.AttemptsRemaining)
	assert.Equal(t, "invalid username or password", resp.Error)
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/auth/register", registrationBody("bob", "bob@example.com"))

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "bob", Password: "wrong"})
		if i < 4 {
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		} else {
			require.Equal(t, http.StatusLocked, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			require.NotNil(t, resp.LockedUntil)
			assert.Greater(t, *resp.LockedUntil, time.Now().Unix())
		}
	}

	// The right password does not help while locked.
	rec := env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "bob", Password: "Secret1!"})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cookie, _ := env.login(t, "admin", "Admin@123")

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/whoami", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginWithStaleSessionCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("iris", "iris@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	iris := decodeBody[AccountResponse](t, rec)
	cookie, _ := env.login(t, "iris", "Secret1!")

	// Server-side revocation leaves the cookie in the browser; a fresh
	// login with correct credentials must still work.
	require.NoError(t, env.identity.RevokeAccountSessions(context.Background(), iris.ID))

	rec = env.do(t, http.MethodPost, "/auth/login",
		LoginRequest{Username: "iris", Password: "Secret1!"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			fresh = c
		}
	}
	require.NotNil(t, fresh, "login should issue a replacement session cookie")

	rec = env.do(t, http.MethodGet, "/api/auth/whoami", nil, fresh)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountListingRequiresAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/auth/register", registrationBody("carol", "carol@example.com"))
	userCookie, _ := env.login(t, "carol", "Secret1!")
	adminCookie, _ := env.login(t, "admin", "Admin@123")

	rec := env.do(t, http.MethodGet, "/api/accounts", nil, userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/accounts", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decodeBody[[]AccountResponse](t, rec)
	assert.Len(t, accounts, 2)

	rec = env.do(t, http.MethodGet, "/api/accounts/stats", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decodeBody[identity.AccountCounts](t, rec)
	assert.Equal(t, 2, counts.Active)
}

func TestProfileAccessSelfOrAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("dave", "dave@example.com"))
	dave := decodeBody[AccountResponse](t, rec)
	rec = env.do(t, http.MethodPost, "/auth/register", registrationBody("erin", "erin@example.com"))
	erin := decodeBody[AccountResponse](t, rec)

	daveCookie, _ := env.login(t, "dave", "Secret1!")
	adminCookie, _ := env.login(t, "admin", "Admin@123")

	ownPath := fmt.Sprintf("/api/accounts/%d", dave.ID)
	otherPath := fmt.Sprintf("/api/accounts/%d", erin.ID)

	rec = env.do(t, http.MethodGet, ownPath, nil, daveCookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, otherPath, nil, daveCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, otherPath, nil, adminCookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Self-update is allowed and persists.
	update := UpdateAccountRequest{
		Username:    "dave",
		Email:       "dave@example.com",
		DateOfBirth: "1992-05-10",
		Country:     "Iceland",
	}
	rec = env.do(t, http.MethodPut, ownPath, update, daveCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[AccountResponse](t, rec)
	assert.Equal(t, "Iceland", updated.Country)
}

func TestDeleteAndRestoreAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("frank", "frank@example.com"))
	frank := decodeBody[AccountResponse](t, rec)

	frankCookie, _ := env.login(t, "frank", "Secret1!")
	adminCookie, _ := env.login(t, "admin", "Admin@123")

	path := fmt.Sprintf("/api/accounts/%d", frank.ID)

	// Regular users cannot delete, not even themselves.
	rec = env.do(t, http.MethodDelete, path, nil, frankCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil, adminCookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Deletion revoked frank's session.
	rec = env.do(t, http.MethodGet, "/api/auth/whoami", nil, frankCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A soft-deleted account cannot sign in.
	rec = env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "frank", Password: "Secret1!"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/accounts/deleted", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeBody[[]AccountResponse](t, rec)
	require.Len(t, deleted, 1)
	assert.Equal(t, "frank", deleted[0].Username)

	rec = env.do(t, http.MethodPost, path+"/restore", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decodeBody[AccountResponse](t, rec)
	assert.True(t, restored.IsActive)

	rec = env.do(t, http.MethodPost, "/auth/login", LoginRequest{Username: "frank", Password: "Secret1!"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("grace", "grace@example.com"))
	grace := decodeBody[AccountResponse](t, rec)
	adminCookie, _ := env.login(t, "admin", "Admin@123")

	path := fmt.Sprintf("/api/accounts/%d/role", grace.ID)

	// Unknown role names are rejected outright.
	rec = env.do(t, http.MethodPut, path, AssignRoleRequest{Role: "SuperAdmin"}, adminCookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "role")

	rec = env.do(t, http.MethodPut, path, AssignRoleRequest{Role: "Manager"}, adminCookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%d", grace.ID), nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[AccountResponse](t, rec)
	assert.Equal(t, "Manager", updated.Role)
}

func TestAssignPermissions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", registrationBody("henry", "henry@example.com"))
	henry := decodeBody[AccountResponse](t, rec)
	adminCookie, _ := env.login(t, "admin", "Admin@123")

	path := fmt.Sprintf("/api/accounts/%d/permissions", henry.ID)
	perms := []string{identity.PermViewUsers, identity.PermViewProfile}
	rec = env.do(t, http.MethodPut, path, AssignPermissionsRequest{Permissions: perms}, adminCookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%d", henry.ID), nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[AccountResponse](t, rec)
	assert.ElementsMatch(t, perms, updated.Permissions)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
