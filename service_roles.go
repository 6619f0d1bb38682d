package authzkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// ROLE GRAPH
// ============================================================================

// CreateRole adds a role to the graph. orgID nil creates a global (system
// tier) role; otherwise the role belongs to that organization. When
// isDefault is set, any previous default role in the same tier is demoted in
// the same transaction, so each tier has at most one default.
//
// Example:
//
//	role, err := service.CreateRole(ctx, &orgID, "agent", "Support Agent", "", 10, false, true)
func (s *Service) CreateRole(ctx context.Context, orgID *string, code, name, description string, level int, isSystemRole, isDefault bool) (*Role, error) {
	if err := ValidateRoleCode(code); err != nil {
		return nil, err
	}

	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	exists, err := dbkit.Exists[Role](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return scopeWhere(q, orgID).Where("code = ?", code)
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, NewError(ErrDuplicateCode, "role code already defined in this scope").
			WithRole(code)
	}

	scope := ScopeGlobal
	if orgID != nil {
		scope = ScopeOrganization
	}

	role := &Role{
		OrganizationID: orgID,
		Code:           code,
		Name:           name,
		Description:    description,
		Scope:          scope,
		Level:          level,
		IsSystemRole:   isSystemRole,
		IsDefault:      isDefault,
		Status:         RoleStatusActive,
	}

	err = s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		if isDefault {
			if err := s.demoteDefaultRoles(ctx, tx, orgID, ""); err != nil {
				return err
			}
		}

		result, err := tx.NewInsert().Model(role).Exec(ctx)
		if err = dbkit.WithErr(result, err, "CreateRole").Err(); err != nil {
			if dbkit.IsDuplicate(err) {
				return NewError(ErrDuplicateCode, "role code already defined in this scope").
					WithRole(code)
			}
			return err
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: orgID,
			Action:         AuditActionCreated,
			ResourceType:   "role",
			ResourceID:     role.ID,
			NewValues: map[string]any{
				"code":           role.Code,
				"name":           role.Name,
				"scope":          string(role.Scope),
				"level":          role.Level,
				"is_system_role": role.IsSystemRole,
				"is_default":     role.IsDefault,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return role, nil
}

// RoleUpdate carries the mutable fields of a role. Nil fields are left
// untouched. Code may only change on non-system roles, or by an elevated
// actor.
type RoleUpdate struct {
	Code        *string
	Name        *string
	Description *string
	Level       *int
	IsDefault   *bool
	Status      *RoleStatus
}

// UpdateRole applies a partial update to a role. Changing the code of a
// system role requires an elevated actor (ErrSystemRoleImmutable otherwise).
// A pure status flip is audited as status_changed; everything else as
// updated.
func (s *Service) UpdateRole(ctx context.Context, roleID string, update RoleUpdate) (*Role, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var updated *Role
	err = s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		if role.IsSystemRole && update.Code != nil && *update.Code != role.Code {
			if !s.elevated(ctx, actorID) {
				return NewError(ErrSystemRoleImmutable, "system role code cannot be changed").
					WithRole(role.Code).
					WithActor(actorID)
			}
		}
		if update.Code != nil {
			if err := ValidateRoleCode(*update.Code); err != nil {
				return err
			}
		}

		old := map[string]any{
			"code":       role.Code,
			"name":       role.Name,
			"level":      role.Level,
			"is_default": role.IsDefault,
			"status":     string(role.Status),
		}

		action := AuditActionUpdated
		if update.Status != nil && *update.Status != role.Status &&
			update.Code == nil && update.Name == nil && update.Description == nil &&
			update.Level == nil && update.IsDefault == nil {
			action = AuditActionStatusChanged
		}

		if update.Code != nil {
			role.Code = *update.Code
		}
		if update.Name != nil {
			role.Name = *update.Name
		}
		if update.Description != nil {
			role.Description = *update.Description
		}
		if update.Level != nil {
			role.Level = *update.Level
		}
		if update.Status != nil {
			role.Status = *update.Status
		}
		if update.IsDefault != nil {
			if *update.IsDefault && !role.IsDefault {
				if err := s.demoteDefaultRoles(ctx, tx, role.OrganizationID, role.ID); err != nil {
					return err
				}
			}
			role.IsDefault = *update.IsDefault
		}

		result, err := tx.NewUpdate().Model(role).
			Column("code", "name", "description", "level", "is_default", "status", "updated_at").
			Where("id = ?", role.ID).
			Exec(ctx)
		if err = dbkit.WithErr(result, err, "UpdateRole").Err(); err != nil {
			if dbkit.IsDuplicate(err) {
				return NewError(ErrDuplicateCode, "role code already defined in this scope").
					WithRole(role.Code)
			}
			return err
		}

		updated = role
		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         action,
			ResourceType:   "role",
			ResourceID:     role.ID,
			OldValues:      old,
			NewValues: map[string]any{
				"code":       role.Code,
				"name":       role.Name,
				"level":      role.Level,
				"is_default": role.IsDefault,
				"status":     string(role.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteRole removes a role from the graph. System roles are protected
// unless the actor is elevated. With active assignments the call fails with
// ErrRoleInUse unless cascade is set, in which case every assignment is
// revoked and audited (role_removed) before the role row goes away.
func (s *Service) DeleteRole(ctx context.Context, roleID string, cascade bool) error {
	actorID, err := requireActor(ctx)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		if role.IsSystemRole && !s.elevated(ctx, actorID) {
			return NewError(ErrSystemRoleImmutable, "system role cannot be deleted").
				WithRole(role.Code).
				WithActor(actorID)
		}

		var active []Assignment
		err = dbkit.WithErr1(tx.NewSelect().Model(&active).
			Where("role_id = ? AND is_active = TRUE", roleID).
			Scan(ctx), "DeleteRoleActiveAssignments").Err()
		if err != nil && !dbkit.IsNotFound(err) {
			return err
		}

		if len(active) > 0 && !cascade {
			return NewError(ErrRoleInUse, "active assignments exist; pass cascade to revoke them").
				WithRole(role.Code)
		}

		for i := range active {
			if err := s.revokeAssignmentTx(ctx, tx, &active[i], role, "cascading role deletion"); err != nil {
				return err
			}
		}

		// Grants go with the role; the audit history keeps the record.
		result, err := tx.NewDelete().Model((*Grant)(nil)).Where("role_id = ?", roleID).Exec(ctx)
		if err = dbkit.WithErr(result, err, "DeleteRoleGrants").Err(); err != nil {
			return err
		}

		result, err = tx.NewDelete().Model((*Role)(nil)).Where("id = ?", roleID).Exec(ctx)
		if err = dbkit.WithErr(result, err, "DeleteRole").Err(); err != nil {
			return err
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         AuditActionDeleted,
			ResourceType:   "role",
			ResourceID:     role.ID,
			OldValues: map[string]any{
				"code":  role.Code,
				"name":  role.Name,
				"level": role.Level,
			},
		})
	})
}

// ListRoles returns the roles visible in an organization context: global
// roles plus, when an organization is given, that organization's own roles.
// Ordered by level descending then name, matching UI ordering.
func (s *Service) ListRoles(ctx context.Context, orgID *string) ([]Role, error) {
	var roles []Role
	q := s.db.NewSelect().Model(&roles)
	if orgID != nil {
		q = q.Where("organization_id IS NULL OR organization_id = ?", *orgID)
	} else {
		q = q.Where("organization_id IS NULL")
	}
	q = q.Order("level DESC", "name ASC")

	err := dbkit.WithErr1(q.Scan(ctx), "ListRoles").Err()
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns a role by ID.
func (s *Service) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return s.getRole(ctx, s.db, roleID)
}

// GetRoleByCode resolves a role by its (organization, code) identity.
func (s *Service) GetRoleByCode(ctx context.Context, orgID *string, code string) (*Role, error) {
	var role Role
	q := scopeWhere(s.db.NewSelect().Model(&role), orgID).Where("code = ?", code).Limit(1)
	err := dbkit.WithErr1(q.Scan(ctx), "GetRoleByCode").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "role not found").WithRole(code)
		}
		return nil, err
	}
	return &role, nil
}

// DefaultRole returns the default role for a tier, or ErrNotFound when none
// is flagged.
func (s *Service) DefaultRole(ctx context.Context, orgID *string) (*Role, error) {
	var role Role
	q := scopeWhere(s.db.NewSelect().Model(&role), orgID).
		Where("is_default = TRUE AND status = ?", RoleStatusActive).
		Limit(1)
	err := dbkit.WithErr1(q.Scan(ctx), "DefaultRole").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "no default role in this scope")
		}
		return nil, err
	}
	return &role, nil
}

// demoteDefaultRoles clears the default flag on every role in the tier,
// except the one being promoted.
func (s *Service) demoteDefaultRoles(ctx context.Context, tx dbkit.IDB, orgID *string, exceptRoleID string) error {
	q := tx.NewUpdate().Model((*Role)(nil)).
		Set("is_default = FALSE").
		Set("updated_at = current_timestamp").
		Where("is_default = TRUE")
	if orgID == nil {
		q = q.Where("organization_id IS NULL")
	} else {
		q = q.Where("organization_id = ?", *orgID)
	}
	if exceptRoleID != "" {
		q = q.Where("id != ?", exceptRoleID)
	}

	result, err := q.Exec(ctx)
	return dbkit.WithErr(result, err, "DemoteDefaultRoles").Err()
}
