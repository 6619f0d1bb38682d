// Package authzkit provides a two-tier role-based access control core with
// a persisted permission catalog, deny-capable grants and an append-only
// audit trail.
//
// AuthzKit models a platform with a global tier (internal staff, support,
// billing) and a tenant tier (per-organization workspaces). Roles and
// permissions live in either tier, and every authorization check is answered
// against an organization context (or against the global context).
//
// # Core Concepts
//
// Permission: A dot-separated code like "chats.handle" or "users.delete",
// defined globally or inside one organization. Permission codes are exact;
// there is no wildcard matching.
//
// Role: A named bundle of grants with a numeric level. Global roles can act
// across every organization; organization roles act only inside their own.
//
// Grant: A (role, permission) edge that either allows or denies. A deny
// grant from any of the user's roles beats every allow grant, regardless of
// role level.
//
// Assignment: A (user, role) link with an effective window and an optional
// primary flag. A user has at most one active primary role.
//
// # Key Features
//
//   - Two tiers: global roles reach every organization, org roles stay home
//   - Deny wins: an explicit deny overrides any allow, default is deny
//   - Conditional grants: time windows, weekdays, attribute matches
//   - Effective windows: assignments activate and expire on their own
//   - Append-only audit: every mutation writes its trail in the same
//     transaction, or the mutation rolls back
//   - Token-agnostic: only needs userID from context
//   - DBKit integration: uses your existing database connection
//
// # Basic Usage
//
//	// 1. Create the service
//	service := authzkit.NewService(db)
//
//	// 2. Run migrations
//	service.Migrate(ctx)
//
//	// 3. Build the catalog and roles
//	perm, _ := service.DefinePermission(ctx, nil, "chats.handle", "Handle chats", "support", false)
//	role, _ := service.CreateRole(ctx, &orgID, "agent", "Support Agent", "", 10, false, true)
//	service.SetGrant(ctx, role.ID, perm.ID, true, nil)
//
//	// 4. Assign roles
//	service.AssignRole(ctx, userID, role.ID, true, time.Time{}, nil, "onboarding")
//
//	// 5. Check permissions
//	decision, _ := service.Check(ctx, userID, "chats.handle", orgID)
//	if decision.Allowed {
//	    // Handle the chat
//	}
//
// # Middleware Usage
//
//	// Setup middleware
//	mw := authzkit.NewMiddleware(service)
//
//	// Protect routes
//	router.Handle("/orgs/{orgID}/chats",
//	    mw.RequirePermission("chats.handle", authzkit.OrgFromParam("orgID"))(chatHandler))
//
//	router.Handle("/admin/users",
//	    mw.RequirePermission("users.manage", authzkit.GlobalContext())(adminHandler))
//
// # Snapshots
//
// When one request runs many checks, load the user's Checker once and ask it
// directly. The Checker works from an immutable snapshot of the user's roles
// and grants, so every answer in the request is mutually consistent:
//
//	checker, _ := service.GetChecker(ctx, userID)
//	if checker.Allowed("billing.view", orgID) && checker.Allowed("billing.export", orgID) {
//	    // Export billing data
//	}
//
// # Audit Log
//
// All catalog, role, grant and assignment changes are logged with:
//   - Actor (who made the change)
//   - Resource type and ID
//   - Action (created, updated, deleted, role_assigned, ...)
//   - Previous and new state
//   - Timestamp
//   - Request metadata (IP, user agent, request ID)
//
// The audit write happens inside the mutation's transaction. If it fails,
// the mutation fails with ErrAuditWriteFailed.
package authzkit
