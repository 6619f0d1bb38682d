package authzkit

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func (s *Service) getRole(ctx context.Context, db dbkit.IDB, roleID string) (*Role, error) {
	var role Role
	err := dbkit.WithErr1(db.NewSelect().Model(&role).Where("id = ?", roleID).Limit(1).Scan(ctx), "GetRole").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "role not found").WithRole(roleID)
		}
		return nil, err
	}
	return &role, nil
}

func (s *Service) getPermission(ctx context.Context, db dbkit.IDB, permissionID string) (*Permission, error) {
	var perm Permission
	err := dbkit.WithErr1(db.NewSelect().Model(&perm).Where("id = ?", permissionID).Limit(1).Scan(ctx), "GetPermission").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "permission not found")
		}
		return nil, err
	}
	return &perm, nil
}

func (s *Service) getAssignment(ctx context.Context, db dbkit.IDB, userID, roleID string) (*Assignment, error) {
	var assignment Assignment
	err := dbkit.WithErr1(db.NewSelect().Model(&assignment).Where("user_id = ? AND role_id = ?", userID, roleID).Limit(1).Scan(ctx), "GetAssignment").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "assignment not found").WithUser(userID).WithRole(roleID)
		}
		return nil, err
	}
	return &assignment, nil
}

// grantScopeCompatible applies the cross-tier policy: a global role may hold
// grants on any permission (this is how platform admins reach into tenants);
// an organization role may only hold grants on global permissions or on
// permissions of its own organization.
func grantScopeCompatible(role *Role, perm *Permission) bool {
	if role.IsGlobal() {
		return true
	}
	if perm.OrganizationID == nil {
		return true
	}
	return *perm.OrganizationID == *role.OrganizationID
}

// requireActor extracts the mutation actor from context or fails.
func requireActor(ctx context.Context) (string, error) {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return "", NewError(ErrNoActorID, "actor ID required for mutations")
	}
	return actorID, nil
}

// MutateWithRetry runs a mutation with automatic retry on transient
// conflicts (serialization failures, deadlocks, dropped connections).
// Validation faults from this package's taxonomy are never retried.
func (s *Service) MutateWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.mutateWithRetry(ctx, fn, 3)
}

func (s *Service) mutateWithRetry(ctx context.Context, fn func(ctx context.Context) error, maxAttempts int) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry on non-transient errors
		if !isTransientTransactionError(err) {
			return err
		}

		// If this is the last attempt, don't wait
		if attempt == maxAttempts-1 {
			break
		}

		// Exponential backoff with jitter
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + rand.Float64()))
		time.Sleep(backoff + jitter)
	}

	return lastErr
}

// isTransientTransactionError checks if an error is transient and can be retried
func isTransientTransactionError(err error) bool {
	if err == nil {
		return false
	}

	// Never retry domain validation faults.
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// PostgreSQL transient errors
	transientErrors := []string{
		"connection",
		"timeout",
		"deadlock",
		"serialization failure",
		"could not serialize",
		"lock wait timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"try again",
		"resource temporarily unavailable",
	}

	for _, transientErr := range transientErrors {
		if strings.Contains(errStr, transientErr) {
			return true
		}
	}

	return false
}

// GetTransactionMetrics returns the current transaction performance metrics.
func (s *Service) GetTransactionMetrics() TransactionMetrics {
	return s.txMonitor.getMetrics()
}

// ResetTransactionMetrics resets all transaction metrics.
func (s *Service) ResetTransactionMetrics() {
	s.txMonitor.reset()
}

// IsTransactionHealthy checks if transaction performance is within acceptable thresholds.
func (s *Service) IsTransactionHealthy() bool {
	metrics := s.txMonitor.getMetrics()

	// If we have very few transactions, consider it healthy
	if metrics.TotalTransactions < 10 {
		return true
	}

	// Check failure rate (should be less than 5%)
	failureRate := float64(metrics.FailedTransactions) / float64(metrics.TotalTransactions)
	if failureRate > 0.05 {
		return false
	}

	// Check average duration (should be less than 1 second)
	if metrics.AverageDuration > time.Second {
		return false
	}

	return true
}
