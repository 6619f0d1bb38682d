package authzkit

import (
	"time"
)

// Snapshot is a user's resolved role set at one instant: the active
// assignments, the roles behind them and every grant those roles hold,
// indexed by permission code. It is immutable once built, so a single
// snapshot can serve every authorization check within a request without
// going back to the database.
type Snapshot struct {
	UserID      string
	TakenAt     time.Time
	Assignments []Assignment
	Roles       map[string]*Role // role id -> role

	// permission code -> grants on that code across the user's roles
	grantsByCode map[string][]grantEdge
}

// grantEdge is one grant joined with the permission it targets.
type grantEdge struct {
	grant      Grant
	role       *Role
	permission *Permission
}

// NewSnapshot builds a snapshot from loaded rows. Assignments that are not
// effective at the given instant are dropped; grants whose role or permission
// is missing from the provided maps are ignored.
func NewSnapshot(userID string, at time.Time, assignments []Assignment, roles map[string]*Role, grants []Grant, permissions map[string]*Permission) *Snapshot {
	s := &Snapshot{
		UserID:       userID,
		TakenAt:      at,
		Roles:        make(map[string]*Role),
		grantsByCode: make(map[string][]grantEdge),
	}

	for _, a := range assignments {
		if !a.EffectiveAt(at) {
			continue
		}
		role, ok := roles[a.RoleID]
		if !ok || role.Status != RoleStatusActive {
			continue
		}
		s.Assignments = append(s.Assignments, a)
		s.Roles[role.ID] = role
	}

	for _, g := range grants {
		role, ok := s.Roles[g.RoleID]
		if !ok {
			continue
		}
		perm, ok := permissions[g.PermissionID]
		if !ok || !perm.IsActive {
			continue
		}
		s.grantsByCode[perm.Code] = append(s.grantsByCode[perm.Code], grantEdge{
			grant:      g,
			role:       role,
			permission: perm,
		})
	}

	return s
}

// GrantsFor returns the joined grants on a permission code across the
// user's active roles. Returns nil when no role expresses an opinion.
func (s *Snapshot) GrantsFor(code string) []grantEdge {
	return s.grantsByCode[code]
}

// HasRole reports whether the user actively holds the role.
func (s *Snapshot) HasRole(roleID string) bool {
	_, ok := s.Roles[roleID]
	return ok
}

// RoleIDs returns the ids of the user's active roles.
func (s *Snapshot) RoleIDs() []string {
	ids := make([]string, 0, len(s.Roles))
	for id := range s.Roles {
		ids = append(ids, id)
	}
	return ids
}

// Primary returns the user's currently effective primary assignment,
// or nil when none is flagged.
func (s *Snapshot) Primary() *Assignment {
	for i := range s.Assignments {
		if s.Assignments[i].IsPrimary {
			return &s.Assignments[i]
		}
	}
	return nil
}

// IsEmpty returns true if the user has no effective assignments.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Assignments) == 0
}
