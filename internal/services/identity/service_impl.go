package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/validome/accountd/internal/db/bunx"
	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/repository"
)

const sessionTokenLength = 32 // bytes of entropy per bearer token

// identityService implements the Service interface. It coordinates the
// account and session repositories, the password hasher, and the lockout
// policy.
type identityService struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository

	hasher  PasswordHasher
	lockout LockoutPolicy

	sessionTTL  time.Duration
	rememberTTL time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// Dependencies contains everything needed to construct the service.
// Injected as a struct so tests can swap repositories for stubs.
type Dependencies struct {
	Accounts repository.AccountRepository
	Sessions repository.SessionRepository

	Hasher  PasswordHasher
	Lockout LockoutPolicy

	// SessionTTL is the lifetime of a normal session; RememberTTL applies
	// when the caller requests a remember-me session.
	SessionTTL  time.Duration
	RememberTTL time.Duration

	Logger *slog.Logger

	// Clock overrides time.Now, letting tests drive lockout expiry.
	Clock func() time.Time
}

// NewService constructs the identity service.
func NewService(deps Dependencies) (Service, error) {
	if deps.Accounts == nil {
		return nil, errors.New("identity service requires an account repository")
	}
	if deps.Sessions == nil {
		return nil, errors.New("identity service requires a session repository")
	}
	if deps.Hasher == nil {
		deps.Hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if deps.Lockout.Threshold == 0 {
		deps.Lockout = NewLockoutPolicy(0, 0)
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = time.Hour
	}
	if deps.RememberTTL <= 0 {
		deps.RememberTTL = 7 * 24 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &identityService{
		accounts:    deps.Accounts,
		sessions:    deps.Sessions,
		hasher:      deps.Hasher,
		lockout:     deps.Lockout,
		sessionTTL:  deps.SessionTTL,
		rememberTTL: deps.RememberTTL,
		logger:      deps.Logger,
		now:         deps.Clock,
	}, nil
}

// =========================================================================
// Authentication
// =========================================================================

func (s *identityService) AuthenticateCredentials(ctx context.Context, username, password, sourceIP string) (*Principal, error) {
	now := s.now()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same rejection as a wrong password, to avoid username
			// enumeration.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}

	// Lockout comes before password verification: presenting invalid
	// credentials forever must not bypass the lock.
	if state := s.lockout.State(account, now); state.Locked {
		s.logger.Info("login rejected, account locked",
			"username", username, "until", state.Until)
		return nil, &LockedError{Until: state.Until}
	}

	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		state, remaining := s.lockout.RecordFailure(account, now)
		if err := s.accounts.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("persist failed attempt: %w", err)
		}
		if state.Locked {
			s.logger.Warn("account locked after repeated failures",
				"username", username, "until", state.Until)
			return nil, &LockedError{Until: state.Until}
		}
		return nil, &InvalidCredentialsError{AttemptsRemaining: remaining}
	}

	s.lockout.RecordSuccess(account)
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("reset lockout state: %w", err)
	}
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, sourceIP, now); err != nil {
		return nil, fmt.Errorf("record last login: %w", err)
	}

	s.logger.Info("login succeeded", "username", username, "account_id", account.ID)
	return BuildPrincipal(account, now), nil
}

// =========================================================================
// Account Lifecycle
// =========================================================================

func (s *identityService) Register(ctx context.Context, in RegistrationInput) (*models.Account, error) {
	now := s.now()

	if ve := in.Validate(now); ve != nil {
		return nil, ve
	}

	ve := &ValidationError{}
	if taken, err := s.accounts.UsernameExists(ctx, in.Username, 0); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if taken {
		ve.Add("username", "username already exists")
	}
	if taken, err := s.accounts.EmailExists(ctx, in.Email, 0); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if taken {
		ve.Add("email", "email already exists")
	}
	if ve.HasErrors() {
		return nil, ve
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
		PhoneNumber:  in.PhoneNumber,
		Country:      in.Country,
		Website:      in.Website,
		Newsletter:   in.Newsletter,
		Role:         models.RoleUser,
		Permissions:  models.JoinPermissions(DefaultPermissions),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// Concurrent registration can slip past the existence checks and
		// land on the partial unique index instead.
		if errors.Is(err, repository.ErrDuplicate) {
			field := duplicateField(err)
			dup := &ValidationError{}
			dup.Add(field, field+" already exists")
			return nil, dup
		}
		return nil, err
	}

	s.logger.Info("account registered", "username", account.Username, "account_id", account.ID)
	return account, nil
}

func (s *identityService) UpdateAccount(ctx context.Context, in UpdateInput) (*models.Account, error) {
	now := s.now()

	if ve := in.Validate(now); ve != nil {
		return nil, ve
	}

	account, err := s.accounts.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, fmt.Errorf("account %d: %w", in.ID, repository.ErrNotFound)
	}

	ve := &ValidationError{}
	if taken, err := s.accounts.UsernameExists(ctx, in.Username, in.ID); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if taken {
		ve.Add("username", "username already exists")
	}
	if taken, err := s.accounts.EmailExists(ctx, in.Email, in.ID); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if taken {
		ve.Add("email", "email already exists")
	}
	if ve.HasErrors() {
		return nil, ve
	}

	account.Username = in.Username
	account.Email = in.Email
	account.DateOfBirth = in.DateOfBirth
	account.Gender = in.Gender
	account.PhoneNumber = in.PhoneNumber
	account.Country = in.Country
	account.Website = in.Website
	account.Department = in.Department
	account.Newsletter = in.Newsletter

	if in.NewPassword != "" {
		hash, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			field := duplicateField(err)
			dup := &ValidationError{}
			dup.Add(field, field+" already exists")
			return nil, dup
		}
		return nil, err
	}
	return account, nil
}

func (s *identityService) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *identityService) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	return s.accounts.ListActive(ctx)
}

func (s *identityService) ListDeletedAccounts(ctx context.Context) ([]models.Account, error) {
	return s.accounts.ListDeleted(ctx)
}

func (s *identityService) AccountCounts(ctx context.Context) (AccountCounts, error) {
	var counts AccountCounts
	var err error
	if counts.Total, err = s.accounts.CountTotal(ctx); err != nil {
		return counts, err
	}
	if counts.Active, err = s.accounts.CountActive(ctx); err != nil {
		return counts, err
	}
	if counts.Deleted, err = s.accounts.CountDeleted(ctx); err != nil {
		return counts, err
	}
	return counts, nil
}

func (s *identityService) DeleteAccount(ctx context.Context, id int64) error {
	deleted, err := s.accounts.SoftDelete(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("account %d: %w", id, repository.ErrNotFound)
	}
	// A deleted account must not keep authenticating through existing
	// sessions.
	if err := s.sessions.RevokeByAccountID(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Info("account soft-deleted", "account_id", id)
	return nil
}

func (s *identityService) RestoreAccount(ctx context.Context, id int64) error {
	restored, err := s.accounts.Restore(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			field := duplicateField(err)
			ve := &ValidationError{}
			ve.Add(field, field+" has been taken by another account")
			return ve
		}
		return err
	}
	if !restored {
		return fmt.Errorf("account %d: %w", id, repository.ErrNotFound)
	}
	s.logger.Info("account restored", "account_id", id)
	return nil
}

// =========================================================================
// Role and Permission Assignment
// =========================================================================

func (s *identityService) AssignRole(ctx context.Context, id int64, roleName string) error {
	role, ok := models.ParseRole(roleName)
	if !ok {
		ve := &ValidationError{}
		ve.Add("role", fmt.Sprintf("unknown role %q", roleName))
		return ve
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	account.Role = role
	if err := s.accounts.Update(ctx, account); err != nil {
		return err
	}
	s.logger.Info("role assigned", "account_id", id, "role", role)
	return nil
}

func (s *identityService) AssignPermissions(ctx context.Context, id int64, permissions []string) error {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	account.Permissions = models.JoinPermissions(permissions)
	return s.accounts.Update(ctx, account)
}

// =========================================================================
// Sessions
// =========================================================================

func (s *identityService) CreateSession(ctx context.Context, accountID int64, remember bool, userAgent, sourceIP string) (*models.Session, string, error) {
	now := s.now()

	token, tokenHash, err := generateSessionToken()
	if err != nil {
		return nil, "", err
	}

	ttl := s.sessionTTL
	if remember {
		ttl = s.rememberTTL
	}

	session := &models.Session{
		ID:         bunx.NewUUIDv7(),
		AccountID:  accountID,
		TokenHash:  tokenHash,
		Remember:   remember,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if sourceIP != "" {
		session.IPAddress = &sourceIP
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}
	return session, token, nil
}

func (s *identityService) ResolveSession(ctx context.Context, token string) (*Principal, error) {
	now := s.now()

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up session: %w", err)
	}

	if session.Revoked || !session.ExpiresAt.After(now) {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up session account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	// Best effort; a failed bump must not reject the request.
	if err := s.sessions.UpdateLastUsed(ctx, session.ID, now); err != nil {
		s.logger.Warn("update session last used", "session_id", session.ID, "error", err)
	}

	return BuildPrincipal(account, now).WithSession(session.ID), nil
}

func (s *identityService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

func (s *identityService) RevokeAccountSessions(ctx context.Context, accountID int64) error {
	return s.sessions.RevokeByAccountID(ctx, accountID)
}

func (s *identityService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("purged expired sessions", "count", removed)
	}
	return removed, nil
}

// duplicateField names the field a repository uniqueness violation points at.
// Falls back to username when the repository does not attribute it.
func duplicateField(err error) string {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) && dup.Field != "" {
		return dup.Field
	}
	return "username"
}

// generateSessionToken mints a cryptographically random bearer token.
// Returns the token (hex) and its SHA-256 hash; only the hash is stored.
func generateSessionToken() (string, string, error) {
	buf := make([]byte, sessionTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

// HashSessionToken hashes a bearer token for storage and lookup.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
