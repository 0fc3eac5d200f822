package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-bexpr"

	"github.com/validome/accountd/internal/db/models"
)

// Named policies bundled with the service.
const (
	PolicyAdminOnly           = "AdminOnly"
	PolicyCanEditOwnProfile   = "CanEditOwnProfile"
	PolicyCanViewDeletedUsers = "CanViewDeletedUsers"
	PolicyCanManageUsers      = "CanManageUsers"
)

// ErrUnknownPolicy is returned when evaluation names a policy the set does
// not contain. Handlers referencing a policy that was never registered are
// a configuration bug, caught at router construction.
var ErrUnknownPolicy = errors.New("unknown authorization policy")

// Resource describes the target of an authorization check. OwnerID is the
// account that owns the resource; zero means ownership does not apply.
type Resource struct {
	OwnerID int64
}

// Requirement is a single predicate over a principal and a target
// resource. Requirements are validated eagerly when a PolicySet is built,
// so a malformed requirement fails at startup rather than per request.
type Requirement interface {
	Validate() error
	Allows(p *Principal, res Resource) bool
}

type roleRequirement struct {
	roles []models.Role
}

// RequireRole passes when the principal's role is in the given set.
func RequireRole(roles ...models.Role) Requirement {
	return &roleRequirement{roles: roles}
}

func (r *roleRequirement) Validate() error {
	if len(r.roles) == 0 {
		return errors.New("role requirement needs at least one role")
	}
	for _, role := range r.roles {
		if _, ok := models.ParseRole(string(role)); !ok {
			return fmt.Errorf("role requirement references unknown role %q", role)
		}
	}
	return nil
}

func (r *roleRequirement) Allows(p *Principal, _ Resource) bool {
	for _, role := range r.roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

type permissionRequirement struct {
	token string
}

// RequirePermission passes when the token is present in the principal's
// permission set (exact string match).
func RequirePermission(token string) Requirement {
	return &permissionRequirement{token: token}
}

func (r *permissionRequirement) Validate() error {
	if r.token == "" {
		return errors.New("permission requirement needs a non-empty token")
	}
	return nil
}

func (r *permissionRequirement) Allows(p *Principal, _ Resource) bool {
	return p.HasPermission(r.token)
}

type selfOrAdminRequirement struct{}

// RequireSelfOrAdmin passes when the principal owns the target resource or
// holds the Admin role. This is the ownership rule gating profile view and
// edit.
func RequireSelfOrAdmin() Requirement {
	return selfOrAdminRequirement{}
}

func (selfOrAdminRequirement) Validate() error { return nil }

func (selfOrAdminRequirement) Allows(p *Principal, res Resource) bool {
	if p.IsAdmin() {
		return true
	}
	return res.OwnerID != 0 && p.AccountID == res.OwnerID
}

type exprRequirement struct {
	expr string
	eval *bexpr.Evaluator
}

// RequireExpr passes when the go-bexpr expression evaluates true against
// the principal's attributes. Available fields: Username, Role,
// Department, Age, AccountID, OwnerID. The expression is compiled during
// Validate, so syntax errors surface at startup.
//
// Example: `Role == "Manager" and Department in "engineering,platform"`.
func RequireExpr(expr string) Requirement {
	return &exprRequirement{expr: expr}
}

func (r *exprRequirement) Validate() error {
	eval, err := bexpr.CreateEvaluator(r.expr)
	if err != nil {
		return fmt.Errorf("invalid attribute expression %q: %w", r.expr, err)
	}
	r.eval = eval
	return nil
}

func (r *exprRequirement) Allows(p *Principal, res Resource) bool {
	if r.eval == nil {
		return false
	}
	datum := map[string]interface{}{
		"Username":   p.Username,
		"Role":       string(p.Role),
		"Department": p.Department,
		"Age":        p.Age,
		"AccountID":  p.AccountID,
		"OwnerID":    res.OwnerID,
	}
	ok, err := r.eval.Evaluate(datum)
	if err != nil {
		// Fail closed on evaluation errors.
		return false
	}
	return ok
}

// Policy is a named conjunction of requirements: all must pass.
type Policy struct {
	Name         string
	Requirements []Requirement
}

// NewPolicy builds a named policy from requirement primitives.
func NewPolicy(name string, reqs ...Requirement) Policy {
	return Policy{Name: name, Requirements: reqs}
}

// PolicySet holds validated named policies. Evaluation is pure: no state
// is read or written beyond the principal snapshot and resource passed in.
type PolicySet struct {
	policies map[string]Policy
}

// NewPolicySet validates every policy eagerly and rejects duplicates,
// unnamed policies, empty requirement lists, and malformed requirements.
func NewPolicySet(policies ...Policy) (*PolicySet, error) {
	set := &PolicySet{policies: make(map[string]Policy, len(policies))}
	for _, pol := range policies {
		if pol.Name == "" {
			return nil, errors.New("policy has no name")
		}
		if len(pol.Requirements) == 0 {
			return nil, fmt.Errorf("policy %q has no requirements", pol.Name)
		}
		if _, exists := set.policies[pol.Name]; exists {
			return nil, fmt.Errorf("duplicate policy %q", pol.Name)
		}
		for _, req := range pol.Requirements {
			if err := req.Validate(); err != nil {
				return nil, fmt.Errorf("policy %q: %w", pol.Name, err)
			}
		}
		set.policies[pol.Name] = pol
	}
	return set, nil
}

// Evaluate runs the named policy against the principal and resource.
// Returns ErrUnknownPolicy for names the set does not contain. A nil
// principal (unauthenticated request) is always denied.
func (s *PolicySet) Evaluate(name string, p *Principal, res Resource) (bool, error) {
	pol, ok := s.policies[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	if p == nil {
		return false, nil
	}
	for _, req := range pol.Requirements {
		if !req.Allows(p, res) {
			return false, nil
		}
	}
	return true, nil
}

// Has reports whether the set contains the named policy. Used to validate
// route configuration at startup.
func (s *PolicySet) Has(name string) bool {
	_, ok := s.policies[name]
	return ok
}

// Names lists the registered policy names, sorted.
func (s *PolicySet) Names() []string {
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPolicySet builds the policies the HTTP layer mounts:
//
//   - AdminOnly: Admin role
//   - CanEditOwnProfile: resource owner or Admin
//   - CanViewDeletedUsers: Admin role plus the view-deleted capability
//   - CanManageUsers: Admin role plus edit and delete capabilities
func DefaultPolicySet() (*PolicySet, error) {
	return NewPolicySet(
		NewPolicy(PolicyAdminOnly,
			RequireRole(models.RoleAdmin)),
		NewPolicy(PolicyCanEditOwnProfile,
			RequireSelfOrAdmin()),
		NewPolicy(PolicyCanViewDeletedUsers,
			RequireRole(models.RoleAdmin),
			RequirePermission(PermViewDeletedUsers)),
		NewPolicy(PolicyCanManageUsers,
			RequireRole(models.RoleAdmin),
			RequirePermission(PermDeleteUsers),
			RequirePermission(PermEditUsers)),
	)
}
