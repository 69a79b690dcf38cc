package query

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
)

// Env is the expression environment exposed for each alarm.
type Env struct {
	// ID is the alarm identifier.
	ID string `expr:"id"`
	// Priority is the urgency ordinal.
	Priority int `expr:"priority"`
	// Status is the lifecycle state as a string.
	Status string `expr:"status"`
	// Category is the stack name as a string.
	Category string `expr:"category"`
	// Assigned reports whether the alarm has a handling agent.
	Assigned bool `expr:"assigned"`
	// Agent is the assigned agent ID, empty when unassigned.
	Agent string `expr:"agent"`
	// AgeSeconds is the time since the alarm was raised, in seconds.
	AgeSeconds float64 `expr:"age_seconds"`
}

// Filter is a compiled boolean expression over alarm fields, e.g.
// `priority >= 7 && !assigned` or `status == "in_progress"`.
type Filter struct {
	// source is the original expression text.
	source string
	// program is the compiled expression.
	program *vm.Program
	// now supplies the reference time for age_seconds; replaceable in tests.
	now func() time.Time
}

// Compile parses and type-checks the filter expression.
func Compile(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	return &Filter{
		source:  source,
		program: program,
		now:     time.Now,
	}, nil
}

// Source returns the original expression text.
func (f *Filter) Source() string {
	return f.source
}

// Match evaluates the filter against one alarm.
func (f *Filter) Match(a *domain.Alarm) (bool, error) {
	env := Env{
		ID:         a.ID,
		Priority:   a.Priority,
		Status:     string(a.Status),
		Category:   string(a.Category),
		Assigned:   a.Assigned(),
		Agent:      a.AssignedAgentID,
		AgeSeconds: f.now().Sub(a.CreatedAt).Seconds(),
	}

	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("run filter: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not evaluate to a boolean", f.source)
	}

	return matched, nil
}

// Apply returns the alarms matching the filter, preserving their order.
// Evaluation errors on individual alarms are returned immediately.
func (f *Filter) Apply(alarms []*domain.Alarm) ([]*domain.Alarm, error) {
	result := make([]*domain.Alarm, 0, len(alarms))

	for _, a := range alarms {
		matched, err := f.Match(a)
		if err != nil {
			return nil, err
		}

		if matched {
			result = append(result, a)
		}
	}

	return result, nil
}
