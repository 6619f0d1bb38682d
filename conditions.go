package authzkit

import (
	"time"
)

// Grant conditions restrict when an allow/deny row takes effect. Each
// condition is a tagged value; a grant applies only when every condition in
// its set is satisfied. Unknown kinds are treated as unsatisfied, so a
// malformed or newer-than-this-binary condition can never widen access.

// ConditionKind tags a condition payload.
type ConditionKind string

const (
	// ConditionTimeWindow limits a grant to [NotBefore, NotAfter).
	// A zero bound is open on that side.
	ConditionTimeWindow ConditionKind = "time_window"

	// ConditionWeekdays limits a grant to the listed weekdays (UTC).
	ConditionWeekdays ConditionKind = "weekdays"

	// ConditionAttribute requires a scope-context attribute to equal a value.
	ConditionAttribute ConditionKind = "attribute_equals"
)

// Condition is one restriction on a grant. Only the fields relevant to its
// Kind are used; the rest stay zero in storage.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// time_window
	NotBefore time.Time `json:"not_before,omitzero"`
	NotAfter  time.Time `json:"not_after,omitzero"`

	// weekdays (time.Weekday values, 0 = Sunday)
	Weekdays []int `json:"weekdays,omitempty"`

	// attribute_equals
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
}

// ConditionSet is the ordered list of conditions on a grant.
// Stored as jsonb on the role_permissions row.
type ConditionSet []Condition

// EvalInput carries the facts a condition can be evaluated against.
type EvalInput struct {
	At           time.Time
	ScopeContext map[string]any
}

// Satisfied reports whether every condition in the set holds for the input.
// An empty set is always satisfied.
func (cs ConditionSet) Satisfied(in EvalInput) bool {
	for _, c := range cs {
		if !c.satisfied(in) {
			return false
		}
	}
	return true
}

func (c Condition) satisfied(in EvalInput) bool {
	switch c.Kind {
	case ConditionTimeWindow:
		if !c.NotBefore.IsZero() && in.At.Before(c.NotBefore) {
			return false
		}
		if !c.NotAfter.IsZero() && !in.At.Before(c.NotAfter) {
			return false
		}
		return true

	case ConditionWeekdays:
		day := int(in.At.UTC().Weekday())
		for _, wd := range c.Weekdays {
			if wd == day {
				return true
			}
		}
		return false

	case ConditionAttribute:
		if in.ScopeContext == nil {
			return false
		}
		v, ok := in.ScopeContext[c.Attribute]
		if !ok {
			return false
		}
		s, ok := v.(string)
		return ok && s == c.Value

	default:
		// Fail closed on unrecognized kinds.
		return false
	}
}

// TimeWindow builds a time_window condition.
func TimeWindow(notBefore, notAfter time.Time) Condition {
	return Condition{Kind: ConditionTimeWindow, NotBefore: notBefore, NotAfter: notAfter}
}

// Weekdays builds a weekdays condition.
func Weekdays(days ...time.Weekday) Condition {
	ints := make([]int, len(days))
	for i, d := range days {
		ints[i] = int(d)
	}
	return Condition{Kind: ConditionWeekdays, Weekdays: ints}
}

// AttributeEquals builds an attribute_equals condition.
func AttributeEquals(attribute, value string) Condition {
	return Condition{Kind: ConditionAttribute, Attribute: attribute, Value: value}
}
