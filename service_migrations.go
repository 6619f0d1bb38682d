package authzkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required for AuthzKit.
// Use dbkit's Migrate with these to create the five relations; the
// uniqueness rules of the model (one code per catalog tier, one grant per
// role/permission pair, one assignment per user/role pair, one active
// primary per user) are enforced here at the storage layer.
func (s *Service) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "authzkit-001",
			Description: "Create permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    organization_id UUID,
                    code TEXT NOT NULL,
                    name TEXT NOT NULL,
                    resource TEXT NOT NULL,
                    action TEXT NOT NULL,
                    category TEXT,
                    scope TEXT NOT NULL,
                    is_dangerous BOOLEAN NOT NULL DEFAULT FALSE,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                );
                CREATE UNIQUE INDEX IF NOT EXISTS permissions_org_code_uq
                    ON permissions (COALESCE(organization_id::text, ''), code)`,
		},
		{
			ID:          "authzkit-002",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    organization_id UUID,
                    code TEXT NOT NULL,
                    name TEXT NOT NULL,
                    description TEXT,
                    scope TEXT NOT NULL,
                    level INTEGER NOT NULL DEFAULT 0,
                    is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
                    is_default BOOLEAN NOT NULL DEFAULT FALSE,
                    status TEXT NOT NULL DEFAULT 'active',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                );
                CREATE UNIQUE INDEX IF NOT EXISTS roles_org_code_uq
                    ON roles (COALESCE(organization_id::text, ''), code)`,
		},
		{
			ID:          "authzkit-003",
			Description: "Create role_permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    role_id UUID NOT NULL REFERENCES roles (id),
                    permission_id UUID NOT NULL REFERENCES permissions (id),
                    is_granted BOOLEAN NOT NULL DEFAULT TRUE,
                    is_inherited BOOLEAN NOT NULL DEFAULT FALSE,
                    conditions JSONB,
                    granted_by TEXT,
                    granted_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (role_id, permission_id)
                )`,
		},
		{
			ID:          "authzkit-004",
			Description: "Create user_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS user_roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    user_id TEXT NOT NULL,
                    role_id UUID NOT NULL REFERENCES roles (id),
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
                    scope TEXT,
                    scope_context JSONB,
                    effective_from TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    effective_until TIMESTAMPTZ,
                    assigned_by TEXT,
                    assigned_reason TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (user_id, role_id)
                );
                CREATE UNIQUE INDEX IF NOT EXISTS user_roles_primary_uq
                    ON user_roles (user_id) WHERE is_primary AND is_active;
                CREATE INDEX IF NOT EXISTS user_roles_user_idx
                    ON user_roles (user_id) WHERE is_active`,
		},
		{
			ID:          "authzkit-005",
			Description: "Create audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    organization_id UUID,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    resource_type TEXT NOT NULL,
                    resource_id TEXT NOT NULL,
                    old_values JSONB,
                    new_values JSONB,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT,
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                );
                CREATE INDEX IF NOT EXISTS audit_log_resource_idx
                    ON audit_log (resource_type, resource_id);
                CREATE INDEX IF NOT EXISTS audit_log_timestamp_idx
                    ON audit_log (timestamp DESC)`,
		},
	}
}

// Migrate runs all pending AuthzKit migrations.
func (s *Service) Migrate(ctx context.Context) error {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return NewError(ErrDatabaseError, "migrations require a dbkit.DBKit instance")
	}
	_, err := db.Migrate(ctx, s.Migrations())
	return err
}
