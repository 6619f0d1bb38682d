package authzkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSnapshotDropsInactiveAssignments tests that only effective assignments
// make it into the snapshot
func TestSnapshotDropsInactiveAssignments(t *testing.T) {
	now := time.Now()
	role := &Role{ID: "role-a", Code: "agent", Level: 10, Status: RoleStatusActive}
	past := now.Add(-time.Hour)
	expired := now.Add(-time.Minute)

	assignments := []Assignment{
		{ID: "live", UserID: "user1", RoleID: role.ID, IsActive: true, EffectiveFrom: past},
		{ID: "disabled", UserID: "user1", RoleID: role.ID, IsActive: false, EffectiveFrom: past},
		{ID: "expired", UserID: "user1", RoleID: role.ID, IsActive: true, EffectiveFrom: past, EffectiveUntil: &expired},
		{ID: "future", UserID: "user1", RoleID: role.ID, IsActive: true, EffectiveFrom: now.Add(time.Hour)},
	}

	s := NewSnapshot("user1", now, assignments, map[string]*Role{role.ID: role}, nil, nil)

	assert.Len(t, s.Assignments, 1)
	assert.Equal(t, "live", s.Assignments[0].ID)
	assert.False(t, s.IsEmpty())
}

// TestSnapshotDropsInactiveRoles tests that inactive or unknown roles are
// excluded along with their grants
func TestSnapshotDropsInactiveRoles(t *testing.T) {
	now := time.Now()
	active := &Role{ID: "role-a", Code: "agent", Level: 10, Status: RoleStatusActive}
	inactive := &Role{ID: "role-b", Code: "retired", Level: 10, Status: RoleStatusInactive}
	perm := &Permission{ID: "perm-1", Code: "chats.handle", IsActive: true}

	assignments := []Assignment{
		{ID: "as-a", UserID: "user1", RoleID: active.ID, IsActive: true, EffectiveFrom: now.Add(-time.Hour)},
		{ID: "as-b", UserID: "user1", RoleID: inactive.ID, IsActive: true, EffectiveFrom: now.Add(-time.Hour)},
		{ID: "as-c", UserID: "user1", RoleID: "role-missing", IsActive: true, EffectiveFrom: now.Add(-time.Hour)},
	}
	grants := []Grant{
		{ID: "g-a", RoleID: active.ID, PermissionID: perm.ID, IsGranted: true},
		{ID: "g-b", RoleID: inactive.ID, PermissionID: perm.ID, IsGranted: false},
	}

	s := NewSnapshot("user1", now, assignments,
		map[string]*Role{active.ID: active, inactive.ID: inactive},
		grants, map[string]*Permission{perm.ID: perm})

	assert.Len(t, s.Assignments, 1)
	assert.True(t, s.HasRole(active.ID))
	assert.False(t, s.HasRole(inactive.ID))
	assert.Equal(t, []string{active.ID}, s.RoleIDs())

	// The inactive role's deny never reaches the decision
	edges := s.GrantsFor("chats.handle")
	assert.Len(t, edges, 1)
	assert.Equal(t, "g-a", edges[0].grant.ID)
}

// TestSnapshotDropsRetiredPermissions tests that retired catalog entries
// never produce grant edges
func TestSnapshotDropsRetiredPermissions(t *testing.T) {
	now := time.Now()
	role := &Role{ID: "role-a", Code: "agent", Level: 10, Status: RoleStatusActive}
	retired := &Permission{ID: "perm-1", Code: "legacy.export", IsActive: false}

	assignments := []Assignment{
		{ID: "as-a", UserID: "user1", RoleID: role.ID, IsActive: true, EffectiveFrom: now.Add(-time.Hour)},
	}
	grants := []Grant{
		{ID: "g-a", RoleID: role.ID, PermissionID: retired.ID, IsGranted: true},
	}

	s := NewSnapshot("user1", now, assignments,
		map[string]*Role{role.ID: role}, grants, map[string]*Permission{retired.ID: retired})

	assert.Nil(t, s.GrantsFor("legacy.export"))
}

// TestSnapshotPrimary tests primary assignment lookup
func TestSnapshotPrimary(t *testing.T) {
	now := time.Now()
	a := &Role{ID: "role-a", Code: "agent", Level: 10, Status: RoleStatusActive}
	b := &Role{ID: "role-b", Code: "manager", Level: 50, Status: RoleStatusActive}

	assignments := []Assignment{
		{ID: "as-a", UserID: "user1", RoleID: a.ID, IsActive: true, EffectiveFrom: now.Add(-time.Hour)},
		{ID: "as-b", UserID: "user1", RoleID: b.ID, IsActive: true, IsPrimary: true, EffectiveFrom: now.Add(-time.Hour)},
	}

	s := NewSnapshot("user1", now, assignments,
		map[string]*Role{a.ID: a, b.ID: b}, nil, nil)

	primary := s.Primary()
	assert.NotNil(t, primary)
	assert.Equal(t, "as-b", primary.ID)

	// No primary flagged
	assignments[1].IsPrimary = false
	s = NewSnapshot("user1", now, assignments,
		map[string]*Role{a.ID: a, b.ID: b}, nil, nil)
	assert.Nil(t, s.Primary())
}

// TestSnapshotEmpty tests the zero-assignment snapshot
func TestSnapshotEmpty(t *testing.T) {
	s := NewSnapshot("user1", time.Now(), nil, nil, nil, nil)

	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.RoleIDs())
	assert.Nil(t, s.Primary())
	assert.Nil(t, s.GrantsFor("anything.at_all"))
}
