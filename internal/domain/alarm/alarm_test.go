package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStatusValid verifies enum membership checks for alarm statuses.
func TestStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusOpen, StatusAssigned, StatusInProgress, StatusClosed} {
		require.True(t, s.Valid())
	}

	require.False(t, Status("resolved").Valid())
	require.False(t, Status("").Valid())

	require.True(t, StatusClosed.Terminal())
	require.False(t, StatusInProgress.Terminal())
}

// TestCategoryValid verifies enum membership checks for stack categories.
func TestCategoryValid(t *testing.T) {
	t.Parallel()

	for _, c := range Categories() {
		require.True(t, c.Valid())
	}

	require.False(t, Category("urgent").Valid())
	require.False(t, Category("").Valid())
}

// TestAlarmClone verifies that Clone returns an independent copy and handles nil.
func TestAlarmClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*Alarm)(nil).Clone())

	a := &Alarm{
		ID:       "a-1",
		Priority: 5,
		Category: CategoryEmergency,
		Status:   StatusOpen,
	}

	b := a.Clone()
	require.Equal(t, a, b)
	require.NotSame(t, a, b)

	b.Priority = 1
	require.Equal(t, 5, a.Priority)
}

// TestLess verifies comparator precedence: priority desc, creation asc,
// unassigned before assigned, ID as the final tie-break.
func TestLess(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		a, b Alarm
		less bool
	}{
		{
			name: "higher priority first",
			a:    Alarm{ID: "x", Priority: 9, CreatedAt: base},
			b:    Alarm{ID: "y", Priority: 3, CreatedAt: base},
			less: true,
		},
		{
			name: "lower priority later",
			a:    Alarm{ID: "x", Priority: 1, CreatedAt: base},
			b:    Alarm{ID: "y", Priority: 2, CreatedAt: base},
			less: false,
		},
		{
			name: "older creation first on equal priority",
			a:    Alarm{ID: "x", Priority: 5, CreatedAt: base},
			b:    Alarm{ID: "y", Priority: 5, CreatedAt: base.Add(time.Minute)},
			less: true,
		},
		{
			name: "unassigned ahead of assigned",
			a:    Alarm{ID: "x", Priority: 5, CreatedAt: base},
			b:    Alarm{ID: "y", Priority: 5, CreatedAt: base, AssignedAgentID: "agent-1", Status: StatusAssigned},
			less: true,
		},
		{
			name: "id breaks full ties",
			a:    Alarm{ID: "a", Priority: 5, CreatedAt: base},
			b:    Alarm{ID: "b", Priority: 5, CreatedAt: base},
			less: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.less, Less(&tc.a, &tc.b))
		})
	}
}

// TestSameOrder verifies comparator-relevant change detection.
func TestSameOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := &Alarm{ID: "a", Priority: 5, CreatedAt: base, Status: StatusOpen}

	// Status change without assignment change keeps the position.
	b := a.Clone()
	b.Status = StatusInProgress
	b.UpdatedAt = base.Add(time.Second)
	require.True(t, SameOrder(a, b))

	// Gaining an assignee moves the alarm.
	c := a.Clone()
	c.Status = StatusAssigned
	c.AssignedAgentID = "agent-1"
	require.False(t, SameOrder(a, c))

	// Priority change moves the alarm.
	d := a.Clone()
	d.Priority = 6
	require.False(t, SameOrder(a, d))
}
