package authzkit

import (
	"sort"
)

// Checker evaluates authorization decisions for a single user over a loaded
// Snapshot. It performs no I/O and never mutates state, so one Checker can
// be shared by every check within a request and called concurrently.
//
// Resolution policy:
//   - An explicit deny on any active role beats an allow on any other role.
//   - With no deny, any satisfied allow grants access.
//   - No opinion resolves to deny (fail closed), including unknown codes.
//   - Organization-scoped permissions are only satisfiable by grants coming
//     from global roles or from roles of the evaluated organization.
type Checker struct {
	snapshot *Snapshot
}

// NewChecker creates a Checker over a snapshot.
func NewChecker(snapshot *Snapshot) *Checker {
	return &Checker{snapshot: snapshot}
}

// UserID returns the user this checker evaluates.
func (c *Checker) UserID() string {
	return c.snapshot.UserID
}

// Snapshot returns the underlying snapshot.
func (c *Checker) Snapshot() *Snapshot {
	return c.snapshot
}

// Check resolves a permission code within an organization context.
// An empty orgID evaluates the global context only.
func (c *Checker) Check(code, orgID string) Decision {
	edges := c.snapshot.GrantsFor(code)
	if len(edges) == 0 {
		return Deny(ReasonNoGrantDefaultDeny)
	}

	var (
		denier     *Role
		allower    *Role
		sawOpinion bool
		sawScoped  bool
	)

	for _, e := range edges {
		if !c.applicable(e, orgID) {
			sawScoped = true
			continue
		}
		if !e.grant.Conditions.Satisfied(c.evalInput(e)) {
			continue
		}
		sawOpinion = true
		if !e.grant.IsGranted {
			if denier == nil || e.role.Level > denier.Level {
				denier = e.role
			}
		} else {
			if allower == nil || e.role.Level > allower.Level {
				allower = e.role
			}
		}
	}

	switch {
	case denier != nil:
		d := Deny(ReasonExplicitDeny)
		d.MatchedRoleID = denier.ID
		return d
	case allower != nil:
		return Allow(allower.ID)
	case !sawOpinion && sawScoped:
		return Deny(ReasonScopeMismatch)
	default:
		return Deny(ReasonNoGrantDefaultDeny)
	}
}

// Allowed is a boolean shorthand for Check.
func (c *Checker) Allowed(code, orgID string) bool {
	return c.Check(code, orgID).Allowed
}

// AllowedAll reports whether every code resolves to allow.
func (c *Checker) AllowedAll(codes []string, orgID string) bool {
	for _, code := range codes {
		if !c.Allowed(code, orgID) {
			return false
		}
	}
	return true
}

// AllowedAny reports whether at least one code resolves to allow.
func (c *Checker) AllowedAny(codes []string, orgID string) bool {
	for _, code := range codes {
		if c.Allowed(code, orgID) {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the sorted permission codes that resolve to
// allow for the user in the given organization context.
func (c *Checker) EffectivePermissions(orgID string) []string {
	var codes []string
	for code := range c.snapshot.grantsByCode {
		if c.Allowed(code, orgID) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// HasRole reports whether the user actively holds the role.
func (c *Checker) HasRole(roleID string) bool {
	return c.snapshot.HasRole(roleID)
}

// applicable reports whether a grant edge may participate in a decision for
// the given organization context.
func (c *Checker) applicable(e grantEdge, orgID string) bool {
	// The permission itself must belong to the evaluated context.
	if e.permission.OrganizationID != nil {
		if orgID == "" || *e.permission.OrganizationID != orgID {
			return false
		}
	}

	// Global roles reach every tenant. Organization roles only count inside
	// their own organization; for global permissions without an organization
	// context they stay out of the decision.
	if e.role.IsGlobal() {
		return true
	}
	if orgID == "" {
		return false
	}
	return e.role.UsableIn(orgID)
}

// evalInput builds the condition evaluation facts for one grant edge,
// carrying the scope context of the assignment that put the role in play.
func (c *Checker) evalInput(e grantEdge) EvalInput {
	in := EvalInput{At: c.snapshot.TakenAt}
	for i := range c.snapshot.Assignments {
		if c.snapshot.Assignments[i].RoleID == e.role.ID {
			in.ScopeContext = c.snapshot.Assignments[i].ScopeContext
			break
		}
	}
	return in
}
