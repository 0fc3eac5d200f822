package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/validome/accountd/internal/auth"
	"github.com/validome/accountd/internal/services/identity"
)

// OwnerResolver extracts the target resource of an authorization check
// from the request. Routes without an ownership dimension use nil.
type OwnerResolver func(r *http.Request) identity.Resource

// OwnerFromURLParam resolves the resource owner from a numeric chi URL
// parameter, typically the account ID of the profile being accessed.
func OwnerFromURLParam(param string) OwnerResolver {
	return func(r *http.Request) identity.Resource {
		id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		if err != nil {
			return identity.Resource{}
		}
		return identity.Resource{OwnerID: id}
	}
}

// Authorizer gates routes with named policies from a validated PolicySet.
type Authorizer struct {
	policies *identity.PolicySet
}

// NewAuthorizer constructs the authorizer.
func NewAuthorizer(policies *identity.PolicySet) (*Authorizer, error) {
	if policies == nil {
		return nil, errors.New("authz middleware requires a policy set")
	}
	return &Authorizer{policies: policies}, nil
}

// Require returns a middleware enforcing the named policy. The name is
// checked against the policy set immediately, so mounting a route with an
// unregistered policy fails at startup instead of denying every request
// at runtime.
func (a *Authorizer) Require(policy string, resolve OwnerResolver) func(http.Handler) http.Handler {
	if !a.policies.Has(policy) {
		panic(fmt.Sprintf("route mounted with unregistered authorization policy %q", policy))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			var res identity.Resource
			if resolve != nil {
				res = resolve(r)
			}

			allowed, err := a.policies.Evaluate(policy, principal, res)
			if err != nil {
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
