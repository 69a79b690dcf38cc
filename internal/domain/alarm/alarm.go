package alarm

import "time"

// Status is the lifecycle state of an alarm.
type Status string

// Alarm lifecycle states. Closed is terminal: once an alarm is closed it
// never returns to any other state.
const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusClosed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status can never be left again.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// Category identifies one of the three independent alarm stacks.
type Category string

// Alarm stack categories. A category is immutable once set on an alarm.
const (
	CategoryEmergency    Category = "emergency"
	CategoryNonEmergency Category = "non_emergency"
	CategoryHistory      Category = "history"
)

// Valid reports whether the category is one of the known stacks.
func (c Category) Valid() bool {
	switch c {
	case CategoryEmergency, CategoryNonEmergency, CategoryHistory:
		return true
	default:
		return false
	}
}

// Categories returns all stack categories in a stable order.
func Categories() []Category {
	return []Category{CategoryEmergency, CategoryNonEmergency, CategoryHistory}
}

// Alarm is a single security alarm as tracked by a category's stack.
type Alarm struct {
	// ID is the globally unique, stable alarm identifier.
	ID string
	// Priority is the urgency ordinal; higher means more urgent.
	Priority int
	// Category is the stack this alarm belongs to, immutable once set.
	Category Category
	// Status is the current lifecycle state.
	Status Status
	// AssignedAgentID references the handling agent. It is empty unless
	// the status is assigned or in_progress.
	AssignedAgentID string
	// CreatedAt is when the alarm was raised, immutable.
	CreatedAt time.Time
	// UpdatedAt is the server's last-modification timestamp. It is the
	// tie-break for conflicting updates: the newest value wins.
	UpdatedAt time.Time
}

// Clone returns a copy of the alarm to avoid leaking internal references.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Assigned reports whether the alarm currently has a handling agent.
func (a *Alarm) Assigned() bool {
	return a.AssignedAgentID != ""
}

// Less is the fixed stack comparator: priority descending, creation time
// ascending, unassigned ranked ahead of assigned. The alarm ID is the final
// tie-break so that the order is a strict total order, which positional
// search in the ordered index relies on.
func Less(a, b *Alarm) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}

	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	if a.Assigned() != b.Assigned() {
		return !a.Assigned()
	}

	return a.ID < b.ID
}

// SameOrder reports whether two versions of an alarm occupy the same
// position in the ordered index, i.e. no comparator-relevant field changed.
func SameOrder(a, b *Alarm) bool {
	return a.Priority == b.Priority &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.Assigned() == b.Assigned() &&
		a.ID == b.ID
}
