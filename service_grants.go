package authzkit

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// GRANT MANAGEMENT
// ============================================================================

// SetGrant records an explicit allow or deny of a permission on a role. The
// upsert is idempotent on (role, permission): repeating a call updates the
// existing row and audits a no-op (old values equal new values) instead of
// creating a duplicate. Fails with ErrScopeMismatch when the role cannot
// hold the permission under the cross-tier policy.
//
// Example:
//
//	grant, err := service.SetGrant(ctx, agentRole.ID, handleChats.ID, true, nil)
func (s *Service) SetGrant(ctx context.Context, roleID, permissionID string, isGranted bool, conditions ConditionSet) (*Grant, error) {
	actorID, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	var saved *Grant
	err = s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		perm, err := s.getPermission(ctx, tx, permissionID)
		if err != nil {
			return err
		}

		if !grantScopeCompatible(role, perm) {
			return NewError(ErrScopeMismatch, "role cannot hold a grant on a permission of another organization").
				WithRole(role.Code).
				WithPermission(perm.Code)
		}

		var existing Grant
		findErr := dbkit.WithErr1(tx.NewSelect().Model(&existing).
			Where("role_id = ? AND permission_id = ?", roleID, permissionID).
			Limit(1).
			Scan(ctx), "FindGrant").Err()

		record := &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         AuditActionPermissionsUpdated,
			ResourceType:   "role",
			ResourceID:     role.ID,
			NewValues: map[string]any{
				"permission": perm.Code,
				"is_granted": isGranted,
			},
		}

		switch {
		case findErr == nil:
			record.OldValues = map[string]any{
				"permission": perm.Code,
				"is_granted": existing.IsGranted,
			}

			existing.IsGranted = isGranted
			existing.Conditions = conditions
			existing.GrantedBy = actorID

			result, err := tx.NewUpdate().Model(&existing).
				Column("is_granted", "conditions", "granted_by", "updated_at").
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err = dbkit.WithErr(result, err, "UpdateGrant").Err(); err != nil {
				return err
			}
			saved = &existing
		case dbkit.IsNotFound(findErr):
			grant := &Grant{
				RoleID:       roleID,
				PermissionID: permissionID,
				IsGranted:    isGranted,
				Conditions:   conditions,
				GrantedBy:    actorID,
			}
			result, err := tx.NewInsert().Model(grant).Exec(ctx)
			if err = dbkit.WithErr(result, err, "CreateGrant").Err(); err != nil {
				return err
			}
			saved = grant
		default:
			return findErr
		}

		return s.writeAudit(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

// RevokeGrant removes the grant row entirely, returning the role to "no
// opinion" on the permission. This is distinct from SetGrant(..., false),
// which records an explicit deny. Emptying a system role's grant set
// requires an elevated actor.
func (s *Service) RevokeGrant(ctx context.Context, roleID, permissionID string) error {
	actorID, err := requireActor(ctx)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		perm, err := s.getPermission(ctx, tx, permissionID)
		if err != nil {
			return err
		}

		if role.IsSystemRole && !s.elevated(ctx, actorID) {
			remaining, err := dbkit.Count[Grant](ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("role_id = ?", roleID)
			})
			if err != nil {
				return err
			}
			if remaining <= 1 {
				return NewError(ErrSystemRoleImmutable, "cannot empty a system role's grant set").
					WithRole(role.Code).
					WithActor(actorID)
			}
		}

		result, err := tx.NewDelete().Model((*Grant)(nil)).
			Where("role_id = ? AND permission_id = ?", roleID, permissionID).
			Exec(ctx)
		if err = dbkit.WithErr(result, err, "RevokeGrant").Err(); err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return NewError(ErrNotFound, "no grant to revoke").
				WithRole(role.Code).
				WithPermission(perm.Code)
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         AuditActionPermissionsUpdated,
			ResourceType:   "role",
			ResourceID:     role.ID,
			OldValues: map[string]any{
				"permission": perm.Code,
			},
			NewValues: map[string]any{
				"permission": perm.Code,
				"revoked":    true,
			},
		})
	})
}

// SetGrants seeds many grants on a role in one transaction, auditing a
// single permissions_updated record for the batch. Intended for catalog
// bootstrap; each entry is validated against the cross-tier policy.
func (s *Service) SetGrants(ctx context.Context, roleID string, permissionIDs []string, isGranted bool) error {
	actorID, err := requireActor(ctx)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		role, err := s.getRole(ctx, tx, roleID)
		if err != nil {
			return err
		}

		grants := make([]*Grant, 0, len(permissionIDs))
		codes := make([]string, 0, len(permissionIDs))
		for _, pid := range permissionIDs {
			perm, err := s.getPermission(ctx, tx, pid)
			if err != nil {
				return err
			}
			if !grantScopeCompatible(role, perm) {
				return NewError(ErrScopeMismatch, "role cannot hold a grant on a permission of another organization").
					WithRole(role.Code).
					WithPermission(perm.Code)
			}
			grants = append(grants, &Grant{
				RoleID:       roleID,
				PermissionID: pid,
				IsGranted:    isGranted,
				GrantedBy:    actorID,
			})
			codes = append(codes, perm.Code)
		}

		if _, err := dbkit.BatchInsert(ctx, tx, grants, dbkit.BatchSize); err != nil {
			return dbkit.WithErr1(err, "SetGrants").Err()
		}

		return s.writeAudit(ctx, tx, &AuditRecord{
			OrganizationID: role.OrganizationID,
			Action:         AuditActionPermissionsUpdated,
			ResourceType:   "role",
			ResourceID:     role.ID,
			NewValues: map[string]any{
				"permissions": codes,
				"is_granted":  isGranted,
			},
		})
	})
}

// GrantsForRole returns every grant on a role, allow and deny rows alike.
func (s *Service) GrantsForRole(ctx context.Context, roleID string) ([]Grant, error) {
	var grants []Grant
	err := dbkit.WithErr1(s.db.NewSelect().Model(&grants).
		Where("role_id = ?", roleID).
		Scan(ctx), "GrantsForRole").Err()
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// ListEffectivePermissions returns the sorted permission codes a role
// allows. A role holds at most one grant per permission, so a deny row
// simply excludes the code. It does not traverse other roles.
func (s *Service) ListEffectivePermissions(ctx context.Context, roleID string) ([]string, error) {
	var codes []string
	err := dbkit.WithErr1(s.db.NewRaw(
		`SELECT p.code FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ? AND rp.is_granted = TRUE AND p.is_active = TRUE`,
		roleID).Scan(ctx, &codes), "ListEffectivePermissions").Err()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(codes)
	return codes, nil
}
