package authzkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Database defines the database operations interface for dependency injection
type Database interface {
	dbkit.IDB
}

// MembershipDirectory resolves organization membership. It is supplied by
// the host application; AssignRole consults it before binding an
// organization-scoped role to a user.
type MembershipDirectory interface {
	Member(ctx context.Context, userID, orgID string) (bool, error)
}

// ElevationCheck authorizes administrative operations on protected entities,
// such as mutating a system role. It may recurse into the resolver itself.
type ElevationCheck func(ctx context.Context, actorID string) (bool, error)

// AccessChecker is the single authorization entry point exposed to the rest
// of the application. Every protected operation calls Check before
// proceeding.
type AccessChecker interface {
	Check(ctx context.Context, userID, permissionCode, orgID string) (Decision, error)
}

// TransactionManager defines the transaction management interface
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx dbkit.IDB) error) error
	ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx dbkit.IDB) error) error
}

// AuditReader defines the audit querying interface
type AuditReader interface {
	AuditLog(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	GetPoolStats() dbkit.PoolStats
}

// TransactionMonitor defines the transaction monitoring interface
type TransactionMonitor interface {
	GetTransactionMetrics() TransactionMetrics
	ResetTransactionMetrics()
	IsTransactionHealthy() bool
}
