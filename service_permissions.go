package authzkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// PERMISSION CATALOG
// ============================================================================

// DefinePermission registers a new capability in the catalog. orgID nil puts
// it in the global catalog; otherwise it belongs to that organization only.
// The code must follow the resource.action convention and be unique within
// its catalog tier.
//
// Example:
//
//	perm, err := service.DefinePermission(ctx, nil, "chats.handle", "Handle chats", "chat", false)
func (s *Service) DefinePermission(ctx context.Context, orgID *string, code, name, category string, isDangerous bool) (*Permission, error) {
	if err := ValidatePermissionCode(code); err != nil {
		return nil, err
	}

	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	exists, err := dbkit.Exists[Permission](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return scopeWhere(q, orgID).Where("code = ?", code)
	})
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, NewError(ErrDuplicateCode, "permission code already defined in this catalog").
			WithPermission(code)
	}

	resource, action := SplitPermissionCode(code)
	scope := ScopeGlobal
	if orgID != nil {
		scope = ScopeOrganization
	}

	perm := &Permission{
		OrganizationID: orgID,
		Code:           code,
		Name:           name,
		Resource:       resource,
		Action:         action,
		Category:       category,
		Scope:          scope,
		IsDangerous:    isDangerous,
		IsActive:       true,
	}

	err = s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		result, err := tx.NewInsert().Model(perm).Exec(ctx)
		if err = dbkit.WithErr(result, err, "DefinePermission").Err(); err != nil {
			if dbkit.IsDuplicate(err) {
				return NewError(ErrDuplicateCode, "permission code already defined in this catalog").
					WithPermission(code)
			}
			return err
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: orgID,
			Action:         AuditActionCreated,
			ResourceType:   "permission",
			ResourceID:     perm.ID,
			NewValues: map[string]any{
				"code":         perm.Code,
				"name":         perm.Name,
				"scope":        string(perm.Scope),
				"is_dangerous": perm.IsDangerous,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return perm, nil
}

// UpdatePermission changes the descriptive fields of a permission. Identity
// fields (code, organization, resource, action) are immutable once defined.
func (s *Service) UpdatePermission(ctx context.Context, permissionID, name, category string, isDangerous bool) (*Permission, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	var updated *Permission
	err := s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		perm, err := s.getPermission(ctx, tx, permissionID)
		if err != nil {
			return err
		}

		old := map[string]any{
			"name":         perm.Name,
			"category":     perm.Category,
			"is_dangerous": perm.IsDangerous,
		}

		perm.Name = name
		perm.Category = category
		perm.IsDangerous = isDangerous

		result, err := tx.NewUpdate().Model(perm).
			Column("name", "category", "is_dangerous", "updated_at").
			Where("id = ?", perm.ID).
			Exec(ctx)
		if err = dbkit.WithErr(result, err, "UpdatePermission").Err(); err != nil {
			return err
		}

		updated = perm
		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: perm.OrganizationID,
			Action:         AuditActionUpdated,
			ResourceType:   "permission",
			ResourceID:     perm.ID,
			OldValues:      old,
			NewValues: map[string]any{
				"name":         name,
				"category":     category,
				"is_dangerous": isDangerous,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetPermission returns a permission by ID.
func (s *Service) GetPermission(ctx context.Context, permissionID string) (*Permission, error) {
	return s.getPermission(ctx, s.db, permissionID)
}

// ListPermissions returns active global permissions plus, when an
// organization is given, that organization's own permissions. Ordered by
// category then name.
func (s *Service) ListPermissions(ctx context.Context, orgID *string) ([]Permission, error) {
	var perms []Permission
	q := s.db.NewSelect().Model(&perms).Where("is_active = TRUE")
	if orgID != nil {
		q = q.Where("organization_id IS NULL OR organization_id = ?", *orgID)
	} else {
		q = q.Where("organization_id IS NULL")
	}
	q = q.Order("category ASC", "name ASC")

	err := dbkit.WithErr1(q.Scan(ctx), "ListPermissions").Err()
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// ListDangerousPermissions returns the active permissions flagged as
// dangerous for the given catalog view. Administrative surfaces use this to
// require extra confirmation.
func (s *Service) ListDangerousPermissions(ctx context.Context, orgID *string) ([]Permission, error) {
	var perms []Permission
	q := s.db.NewSelect().Model(&perms).Where("is_active = TRUE AND is_dangerous = TRUE")
	if orgID != nil {
		q = q.Where("organization_id IS NULL OR organization_id = ?", *orgID)
	} else {
		q = q.Where("organization_id IS NULL")
	}
	q = q.Order("category ASC", "name ASC")

	err := dbkit.WithErr1(q.Scan(ctx), "ListDangerousPermissions").Err()
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// RetirePermission marks a permission inactive. Fails with
// ErrPermissionInUse while any grant still references it; rows are never
// hard-deleted so the audit history stays resolvable.
func (s *Service) RetirePermission(ctx context.Context, permissionID string) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		perm, err := s.getPermission(ctx, tx, permissionID)
		if err != nil {
			return err
		}

		inUse, err := dbkit.Exists[Grant](ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("permission_id = ?", permissionID)
		})
		if err != nil {
			return err
		}
		if inUse {
			return NewError(ErrPermissionInUse, "grants still reference this permission").
				WithPermission(perm.Code)
		}

		result, err := tx.NewUpdate().Model((*Permission)(nil)).
			Set("is_active = FALSE").
			Set("updated_at = current_timestamp").
			Where("id = ?", permissionID).
			Exec(ctx)
		if err = dbkit.WithErr(result, err, "RetirePermission").Err(); err != nil {
			return err
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: perm.OrganizationID,
			Action:         AuditActionRetired,
			ResourceType:   "permission",
			ResourceID:     perm.ID,
			OldValues:      map[string]any{"is_active": true},
			NewValues:      map[string]any{"is_active": false},
		})
	})
}

// scopeWhere narrows a query to one catalog tier: the global tier when orgID
// is nil, a single organization otherwise.
func scopeWhere(q *bun.SelectQuery, orgID *string) *bun.SelectQuery {
	if orgID == nil {
		return q.Where("organization_id IS NULL")
	}
	return q.Where("organization_id = ?", *orgID)
}
