package authzkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRoleIsGlobal tests the tier predicate
func TestRoleIsGlobal(t *testing.T) {
	global := &Role{ID: "r1", Code: "super_admin"}
	assert.True(t, global.IsGlobal())

	scoped := &Role{ID: "r2", Code: "agent", OrganizationID: orgPtr("org1")}
	assert.False(t, scoped.IsGlobal())
}

// TestRoleUsableIn tests role reach per organization context
func TestRoleUsableIn(t *testing.T) {
	global := &Role{ID: "r1", Code: "super_admin"}
	assert.True(t, global.UsableIn("org1"))
	assert.True(t, global.UsableIn(""))

	scoped := &Role{ID: "r2", Code: "agent", OrganizationID: orgPtr("org1")}
	assert.True(t, scoped.UsableIn("org1"))
	assert.False(t, scoped.UsableIn("org2"))
	assert.False(t, scoped.UsableIn(""))
}

// TestAssignmentEffectiveAt tests the half-open effective window
func TestAssignmentEffectiveAt(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	a := &Assignment{IsActive: true, EffectiveFrom: from, EffectiveUntil: &until}

	assert.False(t, a.EffectiveAt(from.Add(-time.Second)))
	assert.True(t, a.EffectiveAt(from), "window start is inclusive")
	assert.True(t, a.EffectiveAt(from.Add(24*time.Hour)))
	assert.False(t, a.EffectiveAt(until), "window end is exclusive")
	assert.False(t, a.EffectiveAt(until.Add(time.Hour)))
}

// TestAssignmentEffectiveAtUnbounded tests the nil-until window
func TestAssignmentEffectiveAtUnbounded(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &Assignment{IsActive: true, EffectiveFrom: from}

	assert.True(t, a.EffectiveAt(from.AddDate(10, 0, 0)))

	// Deactivation trumps the window
	a.IsActive = false
	assert.False(t, a.EffectiveAt(from.Add(time.Hour)))
}

// TestDecisionHelpers tests the Deny and Allow constructors
func TestDecisionHelpers(t *testing.T) {
	d := Deny(ReasonScopeMismatch)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonScopeMismatch, d.Reason)
	assert.Empty(t, d.MatchedRoleID)
	assert.False(t, d.CheckedAt.IsZero())

	a := Allow("role-1")
	assert.True(t, a.Allowed)
	assert.Equal(t, ReasonExplicitAllow, a.Reason)
	assert.Equal(t, "role-1", a.MatchedRoleID)
}
