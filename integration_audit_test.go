package authzkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuditTrailAttribution tests actor and request metadata on records
func TestAuditTrailAttribution(t *testing.T) {
	h := NewTestDataHelper(t)
	if h == nil {
		return
	}
	service := h.GetService()

	ctx := WithAuditContext(h.GetContext(), AuditContext{
		ActorID:   "auditor-1",
		IPAddress: "203.0.113.9",
		UserAgent: "authzkit-test",
		RequestID: "req-audit-1",
	})

	orgID := h.CreateTestOrg()
	role, err := service.CreateRole(ctx, &orgID, "agent", "Agent", "", 10, false, false)
	require.NoError(t, err)

	records, err := service.AuditLog(ctx, NewAuditFilter().WithResource("role", role.ID))
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "auditor-1", record.ActorID)
	assert.Equal(t, "203.0.113.9", record.IPAddress)
	assert.Equal(t, "authzkit-test", record.UserAgent)
	assert.Equal(t, "req-audit-1", record.RequestID)
	assert.Equal(t, AuditActionCreated, record.Action)
	assert.Equal(t, role.Code, record.NewValues["code"])
	require.NotNil(t, record.OrganizationID)
	assert.Equal(t, orgID, *record.OrganizationID)
}

// TestAuditTrailOrdering tests newest-first ordering and pagination
func TestAuditTrailOrdering(t *testing.T) {
	h := NewTestDataHelper(t)
	if h == nil {
		return
	}
	ctx := h.GetContext()
	service := h.GetService()

	orgID := h.CreateTestOrg()
	role := h.CreateTestRole(&orgID, "agent", 10)

	// Three more mutations on the same role
	for i, name := range []string{"First", "Second", "Third"} {
		level := 10 + i
		_, err := service.UpdateRole(ctx, role.ID, RoleUpdate{Name: &name, Level: &level})
		require.NoError(t, err)
	}

	records, err := service.AuditLog(ctx, NewAuditFilter().WithResource("role", role.ID))
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i-1].Timestamp.Before(records[i].Timestamp), "newest first")
	}

	// Pagination slices the same ordering
	page, err := service.AuditLog(ctx, NewAuditFilter().
		WithResource("role", role.ID).
		WithPagination(2, 1))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, records[1].ID, page[0].ID)
	assert.Equal(t, records[2].ID, page[1].ID)
}

// TestAuditTrailFilters tests filtering by action and time range
func TestAuditTrailFilters(t *testing.T) {
	h := NewTestDataHelper(t)
	if h == nil {
		return
	}
	ctx := h.GetContext()
	service := h.GetService()

	orgID := h.CreateTestOrg()
	role := h.CreateTestRole(&orgID, "agent", 10)
	perm := h.CreateTestPermission(&orgID, "chats.handle")
	h.GrantPermission(role.ID, perm.ID)

	user := h.CreateTestUser("agent")
	h.AssignTestRole(user, role.ID, true)
	require.NoError(t, service.RevokeRole(ctx, user, role.ID))

	t.Run("By action", func(t *testing.T) {
		records, err := service.AuditLog(ctx, NewAuditFilter().
			WithOrganization(orgID).
			WithAction(AuditActionRoleAssigned))
		require.NoError(t, err)
		assert.Len(t, records, 1)

		records, err = service.AuditLog(ctx, NewAuditFilter().
			WithOrganization(orgID).
			WithAction(AuditActionRoleRemoved))
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("By time range", func(t *testing.T) {
		records, err := service.AuditLog(ctx, NewAuditFilter().
			WithOrganization(orgID).
			WithSince(time.Now().Add(-time.Minute)))
		require.NoError(t, err)
		assert.NotEmpty(t, records)

		records, err = service.AuditLog(ctx, NewAuditFilter().
			WithOrganization(orgID).
			WithUntil(time.Now().Add(-time.Hour)))
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

// TestAuditRevokeGrantRecordsBothStates tests old/new values on grant flips
func TestAuditRevokeGrantRecordsBothStates(t *testing.T) {
	h := NewTestDataHelper(t)
	if h == nil {
		return
	}
	ctx := h.GetContext()
	service := h.GetService()

	orgID := h.CreateTestOrg()
	role := h.CreateTestRole(&orgID, "agent", 10)
	perm := h.CreateTestPermission(&orgID, "chats.handle")

	h.GrantPermission(role.ID, perm.ID)
	_, err := service.SetGrant(ctx, role.ID, perm.ID, false, nil)
	require.NoError(t, err)

	records, err := service.AuditLog(ctx, NewAuditFilter().
		WithResource("role", role.ID).
		WithAction(AuditActionPermissionsUpdated))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first: the deny flip carries the old allow state
	flip := records[0]
	assert.Equal(t, perm.Code, flip.NewValues["permission"])
	assert.Equal(t, false, flip.NewValues["is_granted"])
	require.NotNil(t, flip.OldValues)
	assert.Equal(t, true, flip.OldValues["is_granted"])

	// The original grant has no prior state
	assert.Nil(t, records[1].OldValues)
}
