package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// testAlarms is a small ordered snapshot for filter tests.
func testAlarms() []*domain.Alarm {
	return []*domain.Alarm{
		{
			ID:        "e-1",
			Priority:  9,
			Category:  domain.CategoryEmergency,
			Status:    domain.StatusOpen,
			CreatedAt: testBase,
		},
		{
			ID:              "e-2",
			Priority:        7,
			Category:        domain.CategoryEmergency,
			Status:          domain.StatusAssigned,
			AssignedAgentID: "agent-b",
			CreatedAt:       testBase.Add(-time.Hour),
		},
		{
			ID:        "e-3",
			Priority:  2,
			Category:  domain.CategoryEmergency,
			Status:    domain.StatusOpen,
			CreatedAt: testBase,
		},
	}
}

// TestCompileRejectsBadExpressions covers syntax and type errors.
func TestCompileRejectsBadExpressions(t *testing.T) {
	t.Parallel()

	_, err := Compile("priority >")
	require.Error(t, err)

	// Non-boolean result.
	_, err = Compile("priority + 1")
	require.Error(t, err)

	// Unknown field.
	_, err = Compile("severity > 3")
	require.Error(t, err)
}

// TestFilterApply evaluates a few representative expressions.
func TestFilterApply(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"priority >= 7":              {"e-1", "e-2"},
		"!assigned":                  {"e-1", "e-3"},
		`status == "assigned"`:       {"e-2"},
		`agent == "agent-b"`:         {"e-2"},
		`assigned || priority > 8`:   {"e-1", "e-2"},
		`category == "emergency"`:    {"e-1", "e-2", "e-3"},
		`priority < 0`:               {},
		`age_seconds > 30 * 60`:      {"e-2"},
	}

	for source, want := range cases {
		t.Run(source, func(t *testing.T) {
			t.Parallel()

			f, err := Compile(source)
			require.NoError(t, err)
			require.Equal(t, source, f.Source())

			f.now = func() time.Time { return testBase }

			got, err := f.Apply(testAlarms())
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}

			require.ElementsMatch(t, want, ids)
		})
	}
}
