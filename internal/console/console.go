package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alertdesk/alarm-console/internal/console/dispatch"
	"github.com/alertdesk/alarm-console/internal/console/optimistic"
	"github.com/alertdesk/alarm-console/internal/console/reconcile"
	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// Sender dispatches client messages on a category's channel. Implemented by
// the transport adapter.
type Sender interface {
	Send(ctx context.Context, category domain.Category, msg *protocol.ClientMessage) error
}

// SendFunc adapts a plain function to the Sender interface.
type SendFunc func(ctx context.Context, category domain.Category, msg *protocol.ClientMessage) error

// Send calls the wrapped function.
func (f SendFunc) Send(ctx context.Context, category domain.Category, msg *protocol.ClientMessage) error {
	return f(ctx, category, msg)
}

// ConnState is a category's connectivity status.
type ConnState string

// Connectivity states. Backfilling is reported while the category is
// connected but still has unresolved sequence gaps.
const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateBackfilling  ConnState = "backfilling"
)

// Options configures a console instance.
type Options struct {
	// AgentID identifies this agent in optimistic updates.
	AgentID string
	// Retry is the backfill retry policy shared by all categories.
	Retry reconcile.Config
	// Fallback is the optional direct-request path used for actions issued
	// while the transport is unavailable.
	Fallback SendFunc
}

// ErrNoSender is returned when an outbound message is issued before a
// transport has been bound.
var ErrNoSender = errors.New("no sender bound")

// Console is the live alarm console core: three fully independent category
// pipelines (dispatcher -> reconciler -> store), an optimistic coordinator
// per category, and the application-level view state. Which category is
// active only affects queries; every category keeps receiving and applying
// updates regardless.
type Console struct {
	// agentID identifies this agent.
	agentID string
	// ctx bounds background work started by the pipelines.
	ctx context.Context
	// reconcilers holds each category's serialized pipeline.
	reconcilers map[domain.Category]*reconcile.Reconciler
	// coordinators holds each category's optimistic overlay.
	coordinators map[domain.Category]*optimistic.Coordinator
	// dispatcher validates and routes raw envelopes by category.
	dispatcher *dispatch.Dispatcher

	// senderMu protects sender, which may be bound after construction when
	// the transport itself needs the console as its handler.
	senderMu sync.RWMutex
	sender   Sender

	// mu protects the view state below.
	mu sync.RWMutex
	// active is the category currently selected for viewing.
	active domain.Category
	// connected tracks per-category transport connectivity.
	connected map[domain.Category]bool
}

// New wires up a console over the given sender. The sender may be nil and
// bound later with Bind when the transport needs the console as its handler.
// Categories start disconnected until the transport reports a connection.
func New(ctx context.Context, opts Options, sender Sender) *Console {
	c := &Console{
		agentID:      opts.AgentID,
		ctx:          ctx,
		reconcilers:  make(map[domain.Category]*reconcile.Reconciler),
		coordinators: make(map[domain.Category]*optimistic.Coordinator),
		active:       domain.CategoryEmergency,
		connected:    make(map[domain.Category]bool),
		sender:       sender,
	}

	sinks := make(map[domain.Category]dispatch.Sink)

	for _, category := range domain.Categories() {
		send := func(ctx context.Context, msg *protocol.ClientMessage) error {
			return c.send(ctx, category, msg)
		}

		var fallback optimistic.SendFunc
		if opts.Fallback != nil {
			fallback = func(ctx context.Context, msg *protocol.ClientMessage) error {
				return opts.Fallback(ctx, category, msg)
			}
		}

		rec := reconcile.New(ctx, category, send, opts.Retry)
		coord := optimistic.New(opts.AgentID, rec, send, fallback)
		rec.SetAppliedObserver(coord.ObserveApplied)

		c.reconcilers[category] = rec
		c.coordinators[category] = coord
		sinks[category] = rec
	}

	c.dispatcher = dispatch.New(sinks)

	return c
}

// Bind attaches the outbound transport. Messages issued before Bind fail
// with ErrNoSender.
func (c *Console) Bind(sender Sender) {
	c.senderMu.Lock()
	defer c.senderMu.Unlock()

	c.sender = sender
}

// send routes an outbound message through the bound transport.
func (c *Console) send(ctx context.Context, category domain.Category, msg *protocol.ClientMessage) error {
	c.senderMu.RLock()
	sender := c.sender
	c.senderMu.RUnlock()

	if sender == nil {
		return ErrNoSender
	}

	return sender.Send(ctx, category, msg)
}

// Deliver feeds one raw broadcast or backfill payload into the engine. A
// returned error means the message was malformed and dropped; no state
// changed and nothing is retried.
func (c *Console) Deliver(ctx context.Context, payload []byte) error {
	if err := c.dispatcher.Dispatch(ctx, payload); err != nil {
		logger.WarnKV(ctx, "Dropped inbound message", "error", err)

		return err
	}

	return nil
}

// OnDisconnect marks the category offline. Stored state is retained
// unchanged.
func (c *Console) OnDisconnect(category domain.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected[category] = false

	logger.WarnKV(c.ctx, "Category channel disconnected", "category", category)
}

// OnReconnect marks the category online and triggers the forced
// reconciliation pass before the category is considered synced again.
func (c *Console) OnReconnect(category domain.Category) {
	c.mu.Lock()
	c.connected[category] = true
	c.mu.Unlock()

	logger.InfoKV(c.ctx, "Category channel connected", "category", category)

	if rec, ok := c.reconcilers[category]; ok {
		rec.ForceReconcile(c.ctx)
	}
}

// Status returns the category's connectivity state.
func (c *Console) Status(category domain.Category) ConnState {
	c.mu.RLock()
	connected := c.connected[category]
	c.mu.RUnlock()

	if !connected {
		return StateDisconnected
	}

	if rec, ok := c.reconcilers[category]; ok && rec.Backfilling() {
		return StateBackfilling
	}

	return StateConnected
}

// Degraded reports whether the category exhausted its backfill retries with
// gaps left unresolved.
func (c *Console) Degraded(category domain.Category) bool {
	rec, ok := c.reconcilers[category]

	return ok && rec.Degraded()
}

// Alarms returns the category's alarms in priority order.
func (c *Console) Alarms(category domain.Category) []*domain.Alarm {
	rec, ok := c.reconcilers[category]
	if !ok {
		return nil
	}

	return rec.Snapshot()
}

// Alarm returns one alarm from the category's stack.
func (c *Console) Alarm(category domain.Category, id string) (*domain.Alarm, bool) {
	rec, ok := c.reconcilers[category]
	if !ok {
		return nil, false
	}

	return rec.Get(id)
}

// PendingSeqs returns the category's unresolved sequence numbers. Entries
// that outlived the retry ceiling remain visible as unknown.
func (c *Console) PendingSeqs(category domain.Category) []uint64 {
	rec, ok := c.reconcilers[category]
	if !ok {
		return nil
	}

	return rec.PendingSeqs()
}

// LastSeq returns the category's sequence cursor.
func (c *Console) LastSeq(category domain.Category) uint64 {
	rec, ok := c.reconcilers[category]
	if !ok {
		return 0
	}

	return rec.LastSeq()
}

// SetActive selects the category shown by the query layer.
func (c *Console) SetActive(category domain.Category) error {
	if !category.Valid() {
		return fmt.Errorf("unknown category %q", category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = category

	return nil
}

// Active returns the currently viewed category.
func (c *Console) Active() domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.active
}

// Claim tentatively assigns the alarm to this agent.
func (c *Console) Claim(ctx context.Context, category domain.Category, id string) (*domain.Alarm, error) {
	coord, ok := c.coordinators[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	return coord.Claim(ctx, id)
}

// Progress tentatively moves an alarm this agent holds to in_progress.
func (c *Console) Progress(ctx context.Context, category domain.Category, id string) (*domain.Alarm, error) {
	coord, ok := c.coordinators[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	return coord.Progress(ctx, id)
}

// CloseAlarm tentatively closes the alarm.
func (c *Console) CloseAlarm(ctx context.Context, category domain.Category, id string) (*domain.Alarm, error) {
	coord, ok := c.coordinators[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	return coord.Close(ctx, id)
}

// Unconfirmed reports whether the alarm has a local change not yet covered
// by a broadcast.
func (c *Console) Unconfirmed(category domain.Category, id string) bool {
	coord, ok := c.coordinators[category]

	return ok && coord.Unconfirmed(id)
}

// AgentID returns this agent's identifier.
func (c *Console) AgentID() string {
	return c.agentID
}

// Close tears down every category pipeline and cancels retry timers.
func (c *Console) Close() {
	for _, rec := range c.reconcilers {
		rec.Close()
	}
}
