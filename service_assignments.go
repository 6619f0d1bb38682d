package authzkit

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// ASSIGNMENT MANAGEMENT
// ============================================================================

// AssignRole binds a role to a user for an effective window. When isPrimary
// is set, any existing primary assignment is demoted inside the same
// transaction, so concurrent readers see either the old primary or the new
// one, never both. Assigning an organization role to a user outside that
// organization fails with ErrRoleScopeViolation.
//
// A zero effectiveFrom starts the window now; a nil effectiveUntil leaves it
// unbounded. Re-assigning an existing (user, role) pair updates the row in
// place, which also reactivates a previously revoked assignment.
//
// Example:
//
//	a, err := service.AssignRole(ctx, userID, agentRole.ID, true, time.Now(), nil, "new hire")
func (s *Service) AssignRole(ctx context.Context, userID, roleID string, isPrimary bool, effectiveFrom time.Time, effectiveUntil *time.Time, reason string) (*Assignment, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if effectiveFrom.IsZero() {
		effectiveFrom = time.Now()
	}

	var saved *Assignment
	err = s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		if !role.IsGlobal() {
			if s.directory == nil {
				return NewError(ErrRoleScopeViolation, "no membership directory configured").
					WithRole(role.Code).
					WithUser(userID)
			}
			member, err := s.directory.Member(ctx, userID, *role.OrganizationID)
			if err != nil {
				return err
			}
			if !member {
				return NewError(ErrRoleScopeViolation, "user does not belong to the role's organization").
					WithRole(role.Code).
					WithUser(userID).
					WithOrganization(*role.OrganizationID)
			}
		}

		if isPrimary {
			if err := s.demotePrimary(ctx, tx, userID); err != nil {
				return err
			}
		}

		var existing Assignment
		findErr := dbkit.WithErr1(tx.NewSelect().Model(&existing).
			Where("user_id = ? AND role_id = ?", userID, roleID).
			Limit(1).
			Scan(ctx), "FindAssignment").Err()

		switch {
		case findErr == nil:
			existing.IsActive = true
			existing.IsPrimary = isPrimary
			existing.EffectiveFrom = effectiveFrom
			existing.EffectiveUntil = effectiveUntil
			existing.AssignedBy = actorID
			existing.AssignedReason = reason

			result, err := tx.NewUpdate().Model(&existing).
				Column("is_active", "is_primary", "effective_from", "effective_until", "assigned_by", "assigned_reason", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err = dbkit.WithErr(result, err, "UpdateAssignment").Err(); err != nil {
				return err
			}
			saved = &existing
		case dbkit.IsNotFound(findErr):
			assignment := &Assignment{
				UserID:         userID,
				RoleID:         roleID,
				IsActive:       true,
				IsPrimary:      isPrimary,
				EffectiveFrom:  effectiveFrom,
				EffectiveUntil: effectiveUntil,
				AssignedBy:     actorID,
				AssignedReason: reason,
			}
			result, err := tx.NewInsert().Model(assignment).Exec(ctx)
			if err = dbkit.WithErr(result, err, "CreateAssignment").Err(); err != nil {
				return err
			}
			saved = assignment
		default:
			return findErr
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         AuditActionRoleAssigned,
			ResourceType:   "assignment",
			ResourceID:     saved.ID,
			NewValues: map[string]any{
				"user_id":    userID,
				"role":       role.Code,
				"is_primary": isPrimary,
				"reason":     reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// RevokeRole deactivates a user's assignment. The row is kept for audit
// history rather than deleted.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID string) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		assignment, err := s.getAssignment(ctx, tx, userID, roleID)
		if err != nil {
			return err
		}
		if !assignment.IsActive {
			return NewError(ErrNotFound, "assignment already revoked").
				WithUser(userID).
				WithRole(role.Code)
		}

		return s.revokeAssignmentTx(ctx, tx, assignment, role, "")
	})
}

// revokeAssignmentTx soft-revokes one assignment inside an open transaction
// and audits it as role_removed. Shared by RevokeRole and the cascade path
// of DeleteRole.
func (s *Service) revokeAssignmentTx(ctx context.Context, tx dbkit.IDB, assignment *Assignment, role *Role, reason string) error {
	result, err := tx.NewUpdate().Model((*Assignment)(nil)).
		Set("is_active = FALSE").
		Set("is_primary = FALSE").
		Set("updated_at = current_timestamp").
		Where("id = ?", assignment.ID).
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "RevokeAssignment").Err(); err != nil {
		return err
	}

	old := map[string]any{
		"user_id":    assignment.UserID,
		"role":       role.Code,
		"is_active":  true,
		"is_primary": assignment.IsPrimary,
	}
	newValues := map[string]any{
		"user_id":   assignment.UserID,
		"role":      role.Code,
		"is_active": false,
	}
	if reason != "" {
		newValues["reason"] = reason
	}

	return s.writeAudit(ctx, tx, &AuditRecord{
		OrganizationID: role.OrganizationID,
		Action:         AuditActionRoleRemoved,
		ResourceType:   "assignment",
		ResourceID:     assignment.ID,
		OldValues:      old,
		NewValues:      newValues,
	})
}

// demotePrimary clears the primary flag on the user's current primary
// assignment, if any. Runs inside the promoting transaction.
func (s *Service) demotePrimary(ctx context.Context, tx dbkit.IDB, userID string) error {
	result, err := tx.NewUpdate().Model((*Assignment)(nil)).
		Set("is_primary = FALSE").
		Set("updated_at = current_timestamp").
		Where("user_id = ? AND is_primary = TRUE", userID).
		Exec(ctx)
	return dbkit.WithErr(result, err, "DemotePrimary").Err()
}

// ListActiveRoles returns the roles behind the user's assignments that are
// effective at the given instant, highest level first. A zero asOf
// evaluates now.
func (s *Service) ListActiveRoles(ctx context.Context, userID string, asOf time.Time) ([]Role, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	assignments, err := s.assignmentsFor(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	var roleIDs []string
	for i := range assignments {
		if assignments[i].EffectiveAt(asOf) {
			roleIDs = append(roleIDs, assignments[i].RoleID)
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var roles []Role
	err = dbkit.WithErr1(s.db.NewSelect().Model(&roles).
		Where("id IN (?)", bun.In(roleIDs)).
		Where("status = ?", RoleStatusActive).
		Order("level DESC", "name ASC").
		Scan(ctx), "ListActiveRoles").Err()
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ListAssignments returns every assignment row for a user, active or not.
func (s *Service) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	return s.assignmentsFor(ctx, s.db, userID)
}

// PrimaryRole returns the role behind the user's currently effective primary
// assignment, or ErrNotFound when none is flagged.
func (s *Service) PrimaryRole(ctx context.Context, userID string) (*Role, error) {
	assignments, err := s.assignmentsFor(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range assignments {
		if assignments[i].IsPrimary && assignments[i].EffectiveAt(now) {
			return s.getRole(ctx, s.db, assignments[i].RoleID)
		}
	}
	return nil, NewError(ErrNotFound, "no effective primary assignment").WithUser(userID)
}

// EnsureDefaultRole assigns the tier's default role to a user who has no
// assignment in that tier yet. Used when onboarding users without an
// explicit role. Returns the resulting assignment, or nil when the user
// already holds a role in the tier or the tier has no default.
func (s *Service) EnsureDefaultRole(ctx context.Context, userID string, orgID *string) (*Assignment, error) {
	def, err := s.DefaultRole(ctx, orgID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	held, err := s.ListActiveRoles(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range held {
		if sameTier(held[i].OrganizationID, orgID) {
			return nil, nil
		}
	}

	return s.AssignRole(ctx, userID, def.ID, false, time.Now(), nil, "default role")
}

// CountActiveAssignments returns the number of active assignments on a role.
func (s *Service) CountActiveAssignments(ctx context.Context, roleID string) (int, error) {
	return dbkit.Count[Assignment](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("role_id = ? AND is_active = TRUE", roleID)
	})
}

func (s *Service) assignmentsFor(ctx context.Context, db dbkit.IDB, userID string) ([]Assignment, error) {
	var assignments []Assignment
	err := dbkit.WithErr1(db.NewSelect().Model(&assignments).
		Where("user_id = ?", userID).
		Scan(ctx), "AssignmentsFor").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return assignments, nil
}

// sameTier reports whether two organization pointers name the same tier.
func sameTier(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
