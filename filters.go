package authzkit

import "time"

// AuditFilter provides options for filtering audit log queries.
type AuditFilter struct {
	// Filter by organization
	OrganizationID string

	// Filter by actor who performed the mutation
	ActorID string

	// Filter by resource type ("role", "permission", "assignment")
	ResourceType string

	// Filter by resource ID
	ResourceID string

	// Filter by action type
	Action AuditAction

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditFilter creates a new AuditFilter with default values.
func NewAuditFilter() AuditFilter {
	return AuditFilter{
		Limit: 100,
	}
}

// WithOrganization sets the organization filter.
func (f AuditFilter) WithOrganization(orgID string) AuditFilter {
	f.OrganizationID = orgID
	return f
}

// WithActor sets the actor ID filter.
func (f AuditFilter) WithActor(actorID string) AuditFilter {
	f.ActorID = actorID
	return f
}

// WithResource sets the resource filter.
func (f AuditFilter) WithResource(resourceType, resourceID string) AuditFilter {
	f.ResourceType = resourceType
	f.ResourceID = resourceID
	return f
}

// WithResourceType sets only the resource type filter.
func (f AuditFilter) WithResourceType(resourceType string) AuditFilter {
	f.ResourceType = resourceType
	return f
}

// WithAction sets the action filter.
func (f AuditFilter) WithAction(action AuditAction) AuditFilter {
	f.Action = action
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditFilter) WithTimeRange(since, until time.Time) AuditFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditFilter) WithSince(since time.Time) AuditFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditFilter) WithUntil(until time.Time) AuditFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f AuditFilter) WithLimit(limit int) AuditFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f AuditFilter) WithOffset(offset int) AuditFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f AuditFilter) WithPagination(limit, offset int) AuditFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
