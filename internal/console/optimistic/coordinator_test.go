package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alertdesk/alarm-console/internal/console/stack"
	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

var (
	testBase    = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	errSendDown = errors.New("transport down")
)

// testPipeline exposes a bare store as the coordinator's pipeline.
type testPipeline struct {
	// store is the backing stack store.
	store *stack.Store
}

// Get returns a copy of the alarm from the backing store.
func (p *testPipeline) Get(id string) (*domain.Alarm, bool) { return p.store.Get(id) }

// ApplyLocal applies the event directly to the backing store.
func (p *testPipeline) ApplyLocal(ev stack.Event) bool { return p.store.Apply(ev) }

// sender records dispatched client messages and can fail on demand.
type sender struct {
	// messages holds every dispatched message.
	messages []*protocol.ClientMessage
	// err is returned from every call when set.
	err error
}

// send records the message and returns the configured error.
func (s *sender) send(_ context.Context, msg *protocol.ClientMessage) error {
	s.messages = append(s.messages, msg)

	return s.err
}

// newFixture builds a coordinator over a store seeded with one open alarm.
func newFixture(t *testing.T, send, fallback SendFunc) (*Coordinator, *testPipeline) {
	t.Helper()

	p := &testPipeline{store: stack.New(domain.CategoryEmergency)}
	require.True(t, p.store.Apply(stack.Event{
		Type: protocol.EventCreated,
		Alarm: &domain.Alarm{
			ID:        "a-1",
			Priority:  5,
			Category:  domain.CategoryEmergency,
			Status:    domain.StatusOpen,
			CreatedAt: testBase,
			UpdatedAt: testBase,
		},
	}))

	c := New("agent-a", p, send, fallback)
	c.now = func() time.Time { return testBase.Add(time.Minute) }

	return c, p
}

// TestClaim verifies the tentative assignment is visible immediately and
// the matching update is dispatched.
func TestClaim(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, p := newFixture(t, out.send, nil)

	tentative, err := c.Claim(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAssigned, tentative.Status)
	require.Equal(t, "agent-a", tentative.AssignedAgentID)

	// Visible in the stack before any server acknowledgment.
	stored, ok := p.store.Get("a-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusAssigned, stored.Status)
	require.Equal(t, "agent-a", stored.AssignedAgentID)
	require.True(t, c.Unconfirmed("a-1"))

	require.Len(t, out.messages, 1)
	require.Equal(t, string(protocol.EventUpdated), out.messages[0].Type)
	require.Equal(t, "agent-a", *out.messages[0].Alarm.AssignedAgentID)

	// Unknown alarm.
	_, err = c.Claim(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownAlarm)
}

// TestClaimConflict rejects claiming an alarm another agent holds.
func TestClaimConflict(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, p := newFixture(t, out.send, nil)

	held, _ := p.store.Get("a-1")
	held.Status = domain.StatusAssigned
	held.AssignedAgentID = "agent-b"
	held.UpdatedAt = testBase.Add(time.Second)
	require.True(t, p.store.Apply(stack.Event{Type: protocol.EventUpdated, Alarm: held}))

	_, err := c.Claim(context.Background(), "a-1")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	require.Empty(t, out.messages)
}

// TestProgress requires the alarm to be held by this agent.
func TestProgress(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, _ := newFixture(t, out.send, nil)

	_, err := c.Progress(context.Background(), "a-1")
	require.ErrorIs(t, err, ErrNotAssignee)

	_, err = c.Claim(context.Background(), "a-1")
	require.NoError(t, err)

	tentative, err := c.Progress(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, tentative.Status)
}

// TestClose removes the alarm from the stack immediately.
func TestClose(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, p := newFixture(t, out.send, nil)

	tentative, err := c.Close(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusClosed, tentative.Status)

	_, ok := p.store.Get("a-1")
	require.False(t, ok)
	require.Equal(t, 0, p.store.Len())

	require.Len(t, out.messages, 1)
	require.Equal(t, string(protocol.EventClosed), out.messages[0].Type)
}

// TestFallbackPath routes the update through the direct-request path when
// the transport is unavailable, keeping the tentative state either way.
func TestFallbackPath(t *testing.T) {
	t.Parallel()

	var (
		out      = &sender{err: errSendDown}
		fallback = new(sender)
	)

	c, p := newFixture(t, out.send, fallback.send)

	tentative, err := c.Claim(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, fallback.messages, 1)
	require.Equal(t, tentative.ID, fallback.messages[0].Alarm.ID)

	// Both paths failing surfaces the error, but the tentative state and
	// its unconfirmed mark persist until a broadcast reconciles them.
	fallback.err = errSendDown

	_, err = c.Progress(context.Background(), "a-1")
	require.ErrorIs(t, err, errSendDown)

	stored, _ := p.store.Get("a-1")
	require.Equal(t, domain.StatusInProgress, stored.Status)
	require.True(t, c.Unconfirmed("a-1"))
}

// TestStaleBroadcastKeepsUnconfirmed delivers a backfilled update that
// predates the local claim: the store discards it as stale, so it confirms
// nothing and the unconfirmed mark must survive.
func TestStaleBroadcastKeepsUnconfirmed(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, p := newFixture(t, out.send, nil)

	_, err := c.Claim(context.Background(), "a-1")
	require.NoError(t, err)
	require.True(t, c.Unconfirmed("a-1"))

	// An old update of the same alarm arrives as a backfill fulfillment.
	// Its timestamp predates the tentative claim.
	stale := &protocol.Envelope{
		Type:      protocol.EventUpdated,
		SeqNumber: 2,
		EmittedAt: testBase.Add(time.Second),
		Alarm: &protocol.WireAlarm{
			ID:        "a-1",
			Priority:  5,
			Category:  domain.CategoryEmergency,
			Status:    domain.StatusOpen,
			CreatedAt: testBase,
			UpdatedAt: testBase.Add(time.Second),
		},
	}

	changed := p.store.Apply(stack.Event{Type: stale.Type, Alarm: protocol.ToDomain(stale.Alarm)})
	require.False(t, changed)
	c.ObserveApplied(stale, changed)

	// The tentative claim is still the stored value and still unconfirmed.
	stored, ok := p.store.Get("a-1")
	require.True(t, ok)
	require.Equal(t, "agent-a", stored.AssignedAgentID)
	require.True(t, c.Unconfirmed("a-1"))

	// The confirming broadcast carries the server's later timestamp.
	agent := "agent-a"
	confirm := &protocol.Envelope{
		Type:      protocol.EventUpdated,
		SeqNumber: 3,
		EmittedAt: testBase.Add(2 * time.Minute),
		Alarm: &protocol.WireAlarm{
			ID:              "a-1",
			Priority:        5,
			Category:        domain.CategoryEmergency,
			Status:          domain.StatusAssigned,
			AssignedAgentID: &agent,
			CreatedAt:       testBase,
			UpdatedAt:       testBase.Add(2 * time.Minute),
		},
	}

	require.True(t, p.store.Apply(stack.Event{Type: confirm.Type, Alarm: protocol.ToDomain(confirm.Alarm)}))
	c.ObserveApplied(confirm, true)
	require.False(t, c.Unconfirmed("a-1"))
}

// TestOptimisticReversal replays the racing-agents scenario: a confirmed
// broadcast with agent B's assignment overwrites agent A's tentative claim
// through the ordinary apply path, and the unconfirmed mark clears.
func TestOptimisticReversal(t *testing.T) {
	t.Parallel()

	out := new(sender)
	c, p := newFixture(t, out.send, nil)

	_, err := c.Claim(context.Background(), "a-1")
	require.NoError(t, err)
	require.True(t, c.Unconfirmed("a-1"))

	// Server truth: agent B won the claim. Its timestamp equals the local
	// tentative one; ties resolve in favor of the incoming value because
	// the server is the source of truth.
	agentB := "agent-b"
	confirmed := &protocol.Envelope{
		Type:      protocol.EventUpdated,
		SeqNumber: 2,
		EmittedAt: testBase.Add(time.Minute),
		Alarm: &protocol.WireAlarm{
			ID:              "a-1",
			Priority:        5,
			Category:        domain.CategoryEmergency,
			Status:          domain.StatusAssigned,
			AssignedAgentID: &agentB,
			CreatedAt:       testBase,
			UpdatedAt:       testBase.Add(time.Minute),
		},
	}

	require.True(t, p.store.Apply(stack.Event{
		Type:  confirmed.Type,
		Alarm: protocol.ToDomain(confirmed.Alarm),
	}))
	c.ObserveApplied(confirmed, true)

	stored, ok := p.store.Get("a-1")
	require.True(t, ok)
	require.Equal(t, "agent-b", stored.AssignedAgentID)
	require.False(t, c.Unconfirmed("a-1"))
	require.Empty(t, c.UnconfirmedIDs())
}
