package authzkit

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// AUTHORIZATION RESOLVER
// ============================================================================

// Check resolves "may this user perform this permission in this
// organization" and is the single authorization entry point for the rest of
// the application. It is a pure query: a read-only transaction loads a
// consistent cut of the user's assignments, roles and grants, and the
// decision is computed in memory. Unknown permission codes resolve to a
// default deny rather than an error, so checks fail closed.
//
// Example:
//
//	decision, err := service.Check(ctx, userID, "chats.handle", orgID)
//	if err != nil || !decision.Allowed {
//	    // reject
//	}
func (s *Service) Check(ctx context.Context, userID, permissionCode, orgID string) (Decision, error) {
	checker, err := s.GetChecker(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return checker.Check(permissionCode, orgID), nil
}

// GetChecker loads the user's snapshot as of now and wraps it in a Checker.
// Callers handling one request should build the checker once and reuse it
// for every permission check in that request.
func (s *Service) GetChecker(ctx context.Context, userID string) (*Checker, error) {
	snapshot, err := s.Snapshot(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	return NewChecker(snapshot), nil
}

// GetCheckerFromContext creates a Checker using the user ID from context.
func (s *Service) GetCheckerFromContext(ctx context.Context) (*Checker, error) {
	userID := GetUserID(ctx)
	if userID == "" {
		return nil, ErrNoUserID
	}
	return s.GetChecker(ctx, userID)
}

// Snapshot loads the user's role and grant set as of one instant inside a
// read-only transaction, so concurrent writers never leak a half-applied
// multi-row change (e.g. a primary demotion) into the snapshot.
func (s *Service) Snapshot(ctx context.Context, userID string, at time.Time) (*Snapshot, error) {
	var snapshot *Snapshot
	err := s.ReadOnlyTransaction(ctx, func(ctx context.Context, tx dbkit.IDB) error {
		var err error
		snapshot, err = s.snapshotTx(ctx, tx, userID, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) snapshotTx(ctx context.Context, tx dbkit.IDB, userID string, at time.Time) (*Snapshot, error) {
	assignments, err := s.assignmentsFor(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var roleIDs []string
	for i := range assignments {
		if assignments[i].EffectiveAt(at) {
			roleIDs = append(roleIDs, assignments[i].RoleID)
		}
	}
	if len(roleIDs) == 0 {
		return NewSnapshot(userID, at, nil, nil, nil, nil), nil
	}

	var roleRows []Role
	err = dbkit.WithErr1(tx.NewSelect().Model(&roleRows).
		Where("id IN (?)", bun.In(roleIDs)).
		Scan(ctx), "SnapshotRoles").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, err
	}
	roles := make(map[string]*Role, len(roleRows))
	for i := range roleRows {
		roles[roleRows[i].ID] = &roleRows[i]
	}

	var grants []Grant
	err = dbkit.WithErr1(tx.NewSelect().Model(&grants).
		Where("role_id IN (?)", bun.In(roleIDs)).
		Scan(ctx), "SnapshotGrants").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, err
	}

	permissions := make(map[string]*Permission)
	if len(grants) > 0 {
		permIDs := make([]string, 0, len(grants))
		for i := range grants {
			permIDs = append(permIDs, grants[i].PermissionID)
		}

		var permRows []Permission
		err = dbkit.WithErr1(tx.NewSelect().Model(&permRows).
			Where("id IN (?)", bun.In(permIDs)).
			Scan(ctx), "SnapshotPermissions").Err()
		if err != nil && !dbkit.IsNotFound(err) {
			return nil, err
		}
		for i := range permRows {
			permissions[permRows[i].ID] = &permRows[i]
		}
	}

	return NewSnapshot(userID, at, assignments, roles, grants, permissions), nil
}
