// Package auth carries the request-facing authentication plumbing: JWT
// access tokens for API clients and the context propagation of the
// authenticated principal.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/validome/accountd/internal/db/models"
	"github.com/validome/accountd/internal/services/identity"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry, or
// claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload for API access tokens. The permission set is
// embedded as expanded at issue time, so token-authenticated requests do
// not hit the account store.
type Claims struct {
	jwt.RegisteredClaims
	AccountID   int64    `json:"uid"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"perms,omitempty"`
}

// TokenIssuer mints and verifies HS256-signed access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. The secret must be non-empty; the TTL
// falls back to one hour when non-positive.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs an access token for the principal.
func (i *TokenIssuer) Issue(p *identity.Principal) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", p.AccountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		AccountID:   p.AccountID,
		Username:    p.Username,
		Email:       p.Email,
		Role:        string(p.Role),
		Permissions: p.Permissions(),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, rebuilding the principal it
// carries. The role claim is checked against the closed role set; a token
// carrying an unknown role is rejected rather than coerced.
func (i *TokenIssuer) Verify(tokenString string) (*identity.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	role, ok := models.ParseRole(claims.Role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return identity.NewPrincipal(claims.AccountID, claims.Username, claims.Email, role, claims.Permissions), nil
}
