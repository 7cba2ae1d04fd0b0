package auth

import (
	"fmt"
	"strings"
)

const (
	// PolicyMustBeFromCity gates point-of-interest routes on the tenant claim.
	PolicyMustBeFromCity = "MustBeFromCity"

	DefaultTenant = "Antwerp"
)

// Decision is the outcome of a policy evaluation.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Requirement is one predicate of a policy.
type Requirement struct {
	name          string
	authenticated bool
	check         func(ClaimSet) bool
}

// RequireAuthenticatedUser denies the empty claim set.
func RequireAuthenticatedUser() Requirement {
	return Requirement{
		name:          "authenticated",
		authenticated: true,
		check:         func(c ClaimSet) bool { return !c.IsEmpty() },
	}
}

// RequireClaim passes when the named claim equals one of allowed exactly
// (case-sensitive, no wildcards).
func RequireClaim(name string, allowed ...string) Requirement {
	values := append([]string(nil), allowed...)
	return Requirement{
		name: fmt.Sprintf("claim(%s) in [%s]", name, strings.Join(values, ",")),
		check: func(c ClaimSet) bool {
			got, ok := c.Get(name)
			if !ok {
				return false
			}
			for _, v := range values {
				if got == v {
					return true
				}
			}
			return false
		},
	}
}

// RequireFunc wraps an arbitrary predicate.
func RequireFunc(name string, fn func(ClaimSet) bool) Requirement {
	return Requirement{name: name, check: fn}
}

// Policy is a named conjunction of requirements.
type Policy struct {
	Name         string
	requiresAuth bool
	requirements []Requirement
}

// NewPolicy builds a policy. Authentication requirements are hoisted so they are
// always checked before any claim comparison.
func NewPolicy(name string, reqs ...Requirement) Policy {
	p := Policy{Name: name}
	for _, r := range reqs {
		if r.authenticated {
			p.requiresAuth = true
			continue
		}
		if r.check == nil {
			continue
		}
		p.requirements = append(p.requirements, r)
	}
	return p
}

// TenantPolicy is the point-of-interest policy: authenticated and tenant claim
// equal to tenant.
func TenantPolicy(name, tenant string) Policy {
	return NewPolicy(name, RequireAuthenticatedUser(), RequireClaim(ClaimTenant, tenant))
}

// Evaluator holds the process-wide policy table. It is read-only after construction.
type Evaluator struct {
	policies map[string]Policy
}

// NewEvaluator registers policies by name.
func NewEvaluator(policies ...Policy) (*Evaluator, error) {
	table := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("%w: policy name is required", ErrInvalidInput)
		}
		if _, dup := table[p.Name]; dup {
			return nil, fmt.Errorf("%w: policy %q registered twice", ErrInvalidInput, p.Name)
		}
		table[p.Name] = p
	}
	return &Evaluator{policies: table}, nil
}

// Evaluate decides claims against the named policy. Unknown policies deny.
func (e *Evaluator) Evaluate(claims ClaimSet, policy string) Decision {
	if e.Authorize(claims, policy) != nil {
		return Deny
	}
	return Allow
}

// Authorize is Evaluate with the reason attached: ErrUnauthenticated when the
// policy needs a user and claims is empty, ErrForbidden when a requirement fails,
// ErrUnknownPolicy when nothing is registered under the name.
func (e *Evaluator) Authorize(claims ClaimSet, policy string) error {
	p, ok := e.policies[policy]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
	if p.requiresAuth && claims.IsEmpty() {
		return ErrUnauthenticated
	}
	for _, r := range p.requirements {
		if !r.check(claims) {
			return fmt.Errorf("%w: %s requires %s", ErrForbidden, p.Name, r.name)
		}
	}
	return nil
}
