package authzkit

import (
	"time"

	"github.com/uptrace/bun"
)

// Scope distinguishes platform-wide entities from tenant-bound ones.
// A global role or permission has no organization; an organization-scoped
// one belongs to exactly one tenant.
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopeOrganization Scope = "organization"
)

// RoleStatus is the lifecycle state of a role.
type RoleStatus string

const (
	RoleStatusActive   RoleStatus = "active"
	RoleStatusInactive RoleStatus = "inactive"
)

// Permission is an atomic capability in the catalog, identified by
// (organization_id, code). Code follows the "resource.action" convention.
// Once a grant references a permission, only its descriptive fields may change.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID             string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OrganizationID *string   `bun:"organization_id,type:uuid"` // nil = global catalog
	Code           string    `bun:"code,notnull"`
	Name           string    `bun:"name,notnull"`
	Resource       string    `bun:"resource,notnull"`
	Action         string    `bun:"action,notnull"`
	Category       string    `bun:"category"`
	Scope          Scope     `bun:"scope,notnull"`
	IsDangerous    bool      `bun:"is_dangerous,notnull,default:false"`
	IsActive       bool      `bun:"is_active,notnull,default:true"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Role is a named, leveled bundle of grants, identified by
// (organization_id, code). System roles are protected from deletion and
// code/scope changes by ordinary actors.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID             string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OrganizationID *string    `bun:"organization_id,type:uuid"` // nil = system/global role
	Code           string     `bun:"code,notnull"`
	Name           string     `bun:"name,notnull"`
	Description    string     `bun:"description"`
	Scope          Scope      `bun:"scope,notnull"`
	Level          int        `bun:"level,notnull,default:0"` // higher = more authority
	IsSystemRole   bool       `bun:"is_system_role,notnull,default:false"`
	IsDefault      bool       `bun:"is_default,notnull,default:false"`
	Status         RoleStatus `bun:"status,notnull,default:'active'"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// IsGlobal reports whether the role lives in the global tier.
func (r *Role) IsGlobal() bool {
	return r.OrganizationID == nil
}

// UsableIn reports whether the role can take effect in the given
// organization context. Global roles apply everywhere; organization roles
// only inside their own tenant.
func (r *Role) UsableIn(orgID string) bool {
	if r.IsGlobal() {
		return true
	}
	return *r.OrganizationID == orgID
}

// Grant binds one role to one permission with an explicit allow/deny
// outcome. A missing row means "no opinion"; IsGranted=false is an explicit
// deny that beats any allow across the user's role set.
type Grant struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	ID           string       `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	RoleID       string       `bun:"role_id,notnull,type:uuid"`
	PermissionID string       `bun:"permission_id,notnull,type:uuid"`
	IsGranted    bool         `bun:"is_granted,notnull,default:true"`
	IsInherited  bool         `bun:"is_inherited,notnull,default:false"`
	Conditions   ConditionSet `bun:"conditions,type:jsonb"`
	GrantedBy    string       `bun:"granted_by"`
	GrantedAt    time.Time    `bun:"granted_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

// Assignment binds one user to one role for an effective window.
// At most one active assignment per user carries IsPrimary.
type Assignment struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	ID             string         `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID         string         `bun:"user_id,notnull"`
	RoleID         string         `bun:"role_id,notnull,type:uuid"`
	IsActive       bool           `bun:"is_active,notnull,default:true"`
	IsPrimary      bool           `bun:"is_primary,notnull,default:false"`
	Scope          string         `bun:"scope"` // free-form qualifier, e.g. "department:support"
	ScopeContext   map[string]any `bun:"scope_context,type:jsonb"`
	EffectiveFrom  time.Time      `bun:"effective_from,notnull,default:current_timestamp"`
	EffectiveUntil *time.Time     `bun:"effective_until"` // nil = unbounded
	AssignedBy     string         `bun:"assigned_by"`
	AssignedReason string         `bun:"assigned_reason"`
	CreatedAt      time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

// EffectiveAt reports whether the assignment is live at the given instant.
// The window is half-open: [EffectiveFrom, EffectiveUntil).
func (a *Assignment) EffectiveAt(at time.Time) bool {
	if !a.IsActive {
		return false
	}
	if at.Before(a.EffectiveFrom) {
		return false
	}
	if a.EffectiveUntil != nil && !at.Before(*a.EffectiveUntil) {
		return false
	}
	return true
}

// AuditAction identifies the kind of mutation an audit record describes.
type AuditAction string

const (
	AuditActionCreated            AuditAction = "created"
	AuditActionUpdated            AuditAction = "updated"
	AuditActionDeleted            AuditAction = "deleted"
	AuditActionStatusChanged      AuditAction = "status_changed"
	AuditActionPermissionsUpdated AuditAction = "permissions_updated"
	AuditActionRoleAssigned       AuditAction = "role_assigned"
	AuditActionRoleRemoved        AuditAction = "role_removed"
	AuditActionRetired            AuditAction = "retired"
)

// AuditRecord is an append-only account of one mutation: who changed what,
// the before/after snapshots, and the request metadata. Records are never
// updated or deleted.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`

	ID             string         `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	OrganizationID *string        `bun:"organization_id,type:uuid"`
	ActorID        string         `bun:"actor_id,notnull"`
	Action         AuditAction    `bun:"action,notnull"`
	ResourceType   string         `bun:"resource_type,notnull"` // "role", "permission", "assignment"
	ResourceID     string         `bun:"resource_id,notnull"`
	OldValues      map[string]any `bun:"old_values,type:jsonb"`
	NewValues      map[string]any `bun:"new_values,type:jsonb"`
	IPAddress      string         `bun:"ip_address"`
	UserAgent      string         `bun:"user_agent"`
	RequestID      string         `bun:"request_id"`
	Timestamp      time.Time      `bun:"timestamp,notnull,default:current_timestamp"`
}

// Reason explains a Decision.
type Reason string

const (
	ReasonExplicitDeny       Reason = "explicit_deny"
	ReasonExplicitAllow      Reason = "explicit_allow"
	ReasonNoGrantDefaultDeny Reason = "no_grant_default_deny"
	ReasonScopeMismatch      Reason = "scope_mismatch"
)

// Decision is the outcome of one authorization check. MatchedRoleID is the
// role that decided the outcome: the denying role on an explicit deny, or the
// highest-level allowing role on an allow. It is empty on a default deny.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	MatchedRoleID string    `json:"matched_role_id,omitempty"`
	Reason        Reason    `json:"reason"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Deny builds a denying decision with the given reason.
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason, CheckedAt: time.Now()}
}

// Allow builds an allowing decision matched by the given role.
func Allow(roleID string) Decision {
	return Decision{Allowed: true, MatchedRoleID: roleID, Reason: ReasonExplicitAllow, CheckedAt: time.Now()}
}
