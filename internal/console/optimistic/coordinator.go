package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alertdesk/alarm-console/internal/console/stack"
	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// Pipeline is the serialized apply-path of one category, implemented by the
// category's reconciler.
type Pipeline interface {
	Get(id string) (*domain.Alarm, bool)
	ApplyLocal(ev stack.Event) bool
}

// SendFunc dispatches a public update message to the transport.
type SendFunc func(ctx context.Context, msg *protocol.ClientMessage) error

// Coordinator action errors.
var (
	// ErrUnknownAlarm is returned when the targeted alarm is not in the stack.
	ErrUnknownAlarm = errors.New("unknown alarm")
	// ErrAlreadyAssigned is returned when claiming an alarm another agent holds.
	ErrAlreadyAssigned = errors.New("alarm already assigned")
	// ErrNotAssignee is returned when progressing an alarm held by another agent.
	ErrNotAssignee = errors.New("alarm assigned to another agent")
)

// Coordinator overlays locally-initiated, unconfirmed changes on top of one
// category's confirmed state. A tentative version of the alarm is applied
// through the ordinary store path and becomes visible immediately; the
// confirming (or superseding) server broadcast later overwrites it through
// the same last-writer-wins comparison, so no separate conflict-resolution
// path exists.
type Coordinator struct {
	// agentID identifies this agent in claim and progress updates.
	agentID string
	// pipeline is the category's serialized apply-path.
	pipeline Pipeline
	// send dispatches updates on the public channel.
	send SendFunc
	// fallback is the direct-request path used when the transport is
	// unavailable. Optional.
	fallback SendFunc
	// now returns the local timestamp for tentative values; replaceable in
	// tests.
	now func() time.Time

	// mu protects the unconfirmed set.
	mu sync.Mutex
	// unconfirmed maps alarm IDs with a pending local change to the local
	// timestamp of that change.
	unconfirmed map[string]time.Time
}

// New creates a coordinator bound to one category pipeline.
func New(agentID string, pipeline Pipeline, send, fallback SendFunc) *Coordinator {
	return &Coordinator{
		agentID:     agentID,
		pipeline:    pipeline,
		send:        send,
		fallback:    fallback,
		now:         time.Now,
		unconfirmed: make(map[string]time.Time),
	}
}

// Claim tentatively assigns the alarm to this agent and dispatches the
// corresponding update. The returned alarm is the tentative value, already
// visible in the stack.
func (c *Coordinator) Claim(ctx context.Context, id string) (*domain.Alarm, error) {
	current, ok := c.pipeline.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlarm, id)
	}

	if current.Assigned() && current.AssignedAgentID != c.agentID {
		return nil, fmt.Errorf("%w: %s holds %s", ErrAlreadyAssigned, current.AssignedAgentID, id)
	}

	tentative := current.Clone()
	tentative.Status = domain.StatusAssigned
	tentative.AssignedAgentID = c.agentID
	tentative.UpdatedAt = c.now().UTC()

	return c.commit(ctx, protocol.EventUpdated, tentative)
}

// Progress tentatively moves an alarm this agent holds to in_progress.
func (c *Coordinator) Progress(ctx context.Context, id string) (*domain.Alarm, error) {
	current, ok := c.pipeline.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlarm, id)
	}

	if current.AssignedAgentID != c.agentID {
		return nil, fmt.Errorf("%w: %s", ErrNotAssignee, id)
	}

	tentative := current.Clone()
	tentative.Status = domain.StatusInProgress
	tentative.UpdatedAt = c.now().UTC()

	return c.commit(ctx, protocol.EventUpdated, tentative)
}

// Close tentatively closes the alarm, removing it from the stack at once.
// Closed is terminal, so a conflicting broadcast cannot reverse it.
func (c *Coordinator) Close(ctx context.Context, id string) (*domain.Alarm, error) {
	current, ok := c.pipeline.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlarm, id)
	}

	tentative := current.Clone()
	tentative.Status = domain.StatusClosed
	tentative.UpdatedAt = c.now().UTC()

	return c.commit(ctx, protocol.EventClosed, tentative)
}

// commit applies the tentative alarm locally, marks it unconfirmed and
// dispatches the update, falling back to the direct-request path when the
// transport reports unavailability. The tentative state persists either
// way until a broadcast reconciles it.
func (c *Coordinator) commit(
	ctx context.Context,
	evType protocol.EventType,
	tentative *domain.Alarm,
) (*domain.Alarm, error) {
	c.pipeline.ApplyLocal(stack.Event{
		Type:  evType,
		Alarm: tentative,
	})

	c.mu.Lock()
	c.unconfirmed[tentative.ID] = tentative.UpdatedAt
	c.mu.Unlock()

	msg := protocol.NewUpdate(evType, tentative)

	err := c.send(ctx, msg)
	if err != nil && c.fallback != nil {
		logger.WarnKV(ctx, "Transport unavailable, using fallback path",
			"alarm_id", tentative.ID,
			"error", err,
		)

		err = c.fallback(ctx, msg)
	}

	if err != nil {
		return tentative, fmt.Errorf("dispatch update: %w", err)
	}

	return tentative, nil
}

// ObserveApplied is wired as the reconciler's applied observer. A server
// envelope confirms or supersedes a pending local change only when its
// timestamp is not older than the local one; a stale envelope, such as a
// backfill fulfillment predating the claim, leaves the mark in place. It
// runs under the pipeline mutex and must stay free of calls back into the
// pipeline.
func (c *Coordinator) ObserveApplied(env *protocol.Envelope, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	localAt, ok := c.unconfirmed[env.Alarm.ID]
	if !ok {
		return
	}

	if env.Alarm.UpdatedAt.Before(localAt) {
		return
	}

	delete(c.unconfirmed, env.Alarm.ID)
}

// Unconfirmed reports whether the alarm has a local change not yet covered
// by a server broadcast.
func (c *Coordinator) Unconfirmed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.unconfirmed[id]

	return ok
}

// UnconfirmedIDs returns the alarms with pending local changes.
func (c *Coordinator) UnconfirmedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, 0, len(c.unconfirmed))
	for id := range c.unconfirmed {
		result = append(result, id)
	}

	return result
}
