package auth

import (
	"context"

	"github.com/validome/accountd/internal/services/identity"
)

type principalContextKey struct{}

// SetPrincipal stores the authenticated principal on the context for
// downstream consumers.
func SetPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal from the
// context.
func PrincipalFromContext(ctx context.Context) (*identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*identity.Principal)
	return p, ok && p != nil
}
