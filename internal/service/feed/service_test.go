package feed

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// openAlarm builds an open alarm for the given category.
func openAlarm(id string, category domain.Category) *domain.Alarm {
	return &domain.Alarm{
		ID:        id,
		Priority:  5,
		Category:  category,
		Status:    domain.StatusOpen,
		CreatedAt: testBase,
		UpdatedAt: testBase,
	}
}

// TestPublishAssignsSequenceAndFansOut checks sequencing and fan-out.
func TestPublishAssignsSequenceAndFansOut(t *testing.T) {
	t.Parallel()

	svc := NewService()
	svc.now = func() time.Time { return testBase }

	sub := &subscriber{envelopes: make(chan *protocol.Envelope, subscriberBuffer)}
	svc.addSubscriber(domain.CategoryEmergency, sub)

	first := svc.Publish(protocol.EventCreated, openAlarm("a-1", domain.CategoryEmergency))
	second := svc.Publish(protocol.EventCreated, openAlarm("a-2", domain.CategoryEmergency))

	require.Equal(t, uint64(1), first.SeqNumber)
	require.Equal(t, uint64(2), second.SeqNumber)
	require.Equal(t, testBase, first.EmittedAt)

	require.Len(t, sub.envelopes, 2)
	require.Equal(t, "a-1", (<-sub.envelopes).Alarm.ID)
	require.Equal(t, "a-2", (<-sub.envelopes).Alarm.ID)
}

// TestReplaySkipsUnknownNumbers returns only stored envelopes.
func TestReplaySkipsUnknownNumbers(t *testing.T) {
	t.Parallel()

	svc := NewService()
	svc.Publish(protocol.EventCreated, openAlarm("a-1", domain.CategoryEmergency))
	svc.Publish(protocol.EventCreated, openAlarm("a-2", domain.CategoryEmergency))

	replayed := svc.Replay(domain.CategoryEmergency, []uint64{1, 2, 99})
	require.Len(t, replayed, 2)
	require.Equal(t, uint64(1), replayed[0].SeqNumber)
	require.Equal(t, uint64(2), replayed[1].SeqNumber)

	// Other categories have independent logs.
	require.Empty(t, svc.Replay(domain.CategoryHistory, []uint64{1}))
}

// TestApplyUpdateIsAuthoritative overrides the client-supplied timestamp.
func TestApplyUpdateIsAuthoritative(t *testing.T) {
	t.Parallel()

	svc := NewService()
	svc.now = func() time.Time { return testBase.Add(time.Hour) }

	svc.Publish(protocol.EventCreated, openAlarm("a-1", domain.CategoryEmergency))

	sub := &subscriber{envelopes: make(chan *protocol.Envelope, subscriberBuffer)}
	svc.addSubscriber(domain.CategoryEmergency, sub)

	claimed := openAlarm("a-1", domain.CategoryEmergency)
	claimed.Status = domain.StatusAssigned
	claimed.AssignedAgentID = "agent-a"
	// Advisory client timestamp, far in the past.
	claimed.UpdatedAt = testBase.Add(-time.Hour)

	require.NoError(t, svc.ApplyUpdate(domain.CategoryEmergency, protocol.NewUpdate(protocol.EventUpdated, claimed)))

	env := <-sub.envelopes
	require.Equal(t, protocol.EventUpdated, env.Type)
	require.Equal(t, testBase.Add(time.Hour), env.Alarm.UpdatedAt)
	require.Equal(t, "agent-a", *env.Alarm.AssignedAgentID)

	// Updates for unknown alarms are rejected.
	err := svc.ApplyUpdate(domain.CategoryEmergency, protocol.NewUpdate(protocol.EventUpdated, openAlarm("ghost", domain.CategoryEmergency)))
	require.ErrorIs(t, err, errUnknownAlarm)
}

// TestCloseRepublishesIntoHistory verifies the history product decision:
// closing an alarm emits a created record in the history category.
func TestCloseRepublishesIntoHistory(t *testing.T) {
	t.Parallel()

	svc := NewService()
	svc.Publish(protocol.EventCreated, openAlarm("a-1", domain.CategoryEmergency))

	historySub := &subscriber{envelopes: make(chan *protocol.Envelope, subscriberBuffer)}
	svc.addSubscriber(domain.CategoryHistory, historySub)

	closed := openAlarm("a-1", domain.CategoryEmergency)
	closed.Status = domain.StatusClosed
	svc.Publish(protocol.EventClosed, closed)

	env := <-historySub.envelopes
	require.Equal(t, protocol.EventCreated, env.Type)
	require.Equal(t, uint64(1), env.SeqNumber)
	require.Equal(t, domain.CategoryHistory, env.Alarm.Category)
	require.Equal(t, domain.StatusClosed, env.Alarm.Status)

	// The emergency log no longer tracks the alarm.
	err := svc.ApplyUpdate(domain.CategoryEmergency, protocol.NewUpdate(protocol.EventUpdated, openAlarm("a-1", domain.CategoryEmergency)))
	require.ErrorIs(t, err, errUnknownAlarm)
}

// TestSimulateOnce produces a coherent event stream.
func TestSimulateOnce(t *testing.T) {
	t.Parallel()

	svc := NewService()
	rng := rand.New(rand.NewSource(1))

	for range 50 {
		svc.SimulateOnce(rng)
	}

	total := uint64(0)
	for _, category := range domain.Categories() {
		svc.mu.Lock()
		total += svc.logs[category].lastSeq
		svc.mu.Unlock()
	}

	require.NotZero(t, total)
}
