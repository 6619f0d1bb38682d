package authzkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Service provides the permission catalog, role graph, grant and assignment
// management, the authorization resolver and the audit trail. It integrates
// with the database through dbkit with enhanced error handling.
//
// Error Handling:
// All database operations use dbkit's chainable error wrapping to provide
// detailed context about failed operations. Domain faults carry the sentinel
// taxonomy of this package on top.
//
// Example error handling:
//
//	_, err := service.SetGrant(ctx, roleID, permID, true, nil)
//	if err != nil {
//	    if authzkit.IsScopeMismatch(err) {
//	        // role and permission live in incompatible organizations
//	    }
//	    if authzkit.IsAuditWriteFailed(err) {
//	        // the grant was rolled back; nothing changed
//	    }
//	}
type Service struct {
	db        dbkit.IDB
	directory MembershipDirectory
	elevation ElevationCheck
	txMonitor *transactionMonitor
}

// Option configures a Service.
type Option func(*Service)

// WithMembershipDirectory wires the host application's organization
// membership lookup. Without it, AssignRole cannot validate organization
// scope and rejects organization-role assignments.
func WithMembershipDirectory(d MembershipDirectory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

// WithElevationCheck wires the privilege check that authorizes mutations of
// system roles. Without it, system roles are fully immutable.
func WithElevationCheck(fn ElevationCheck) Option {
	return func(s *Service) {
		s.elevation = fn
	}
}

// NewService creates a new AuthzKit service.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := authzkit.NewService(db,
//	    authzkit.WithMembershipDirectory(orgDirectory),
//	)
func NewService(db dbkit.IDB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		txMonitor: newTransactionMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// elevated reports whether the actor may mutate protected entities.
func (s *Service) elevated(ctx context.Context, actorID string) bool {
	if s.elevation == nil {
		return false
	}
	ok, err := s.elevation(ctx, actorID)
	return err == nil && ok
}
