package protocol

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
)

// EventType tags a broadcast envelope with the mutation it carries.
type EventType string

// Broadcast event types.
const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventClosed  EventType = "closed"
)

// Valid reports whether the event type is one of created/updated/closed.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventClosed:
		return true
	default:
		return false
	}
}

// Client message types sent on the private request channel.
const (
	// TypeSubscribe opens a category channel; the first message on a
	// stream must be a subscribe.
	TypeSubscribe = "subscribe"
	// TypeRequestAlarms asks the server to re-send specific sequence numbers.
	TypeRequestAlarms = "request_alarms"
)

// WireAlarm is the JSON representation of an alarm on the wire.
// AssignedAgentID is a pointer so absence is encoded as null.
type WireAlarm struct {
	ID              string          `json:"id"`
	Priority        int             `json:"priority"`
	Category        domain.Category `json:"category"`
	Status          domain.Status   `json:"status"`
	AssignedAgentID *string         `json:"assigned_agent_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Envelope is an inbound broadcast message. Backfill responses reuse the
// same shape on the private channel.
type Envelope struct {
	Type      EventType `json:"type"`
	SeqNumber uint64    `json:"seq_number"`
	EmittedAt time.Time `json:"emitted_at"`
	Alarm     *WireAlarm `json:"alarm"`
}

// ClientMessage is an outbound message from an agent: a channel subscribe,
// a backfill request, or a public update (updated/closed).
type ClientMessage struct {
	Type       string          `json:"type"`
	Category   domain.Category `json:"category,omitempty"`
	SeqNumbers []uint64        `json:"seq_numbers,omitempty"`
	Alarm      *WireAlarm      `json:"alarm,omitempty"`
}

// NewSubscribe builds the stream-opening message for a category channel.
func NewSubscribe(category domain.Category) *ClientMessage {
	return &ClientMessage{
		Type:     TypeSubscribe,
		Category: category,
	}
}

// NewBackfillRequest builds a private request for the given sequence numbers.
func NewBackfillRequest(seqNumbers []uint64) *ClientMessage {
	return &ClientMessage{
		Type:       TypeRequestAlarms,
		SeqNumbers: seqNumbers,
	}
}

// NewUpdate builds a public update message. The updated_at carried by the
// client is advisory; the server's broadcast value is authoritative.
func NewUpdate(eventType EventType, alarm *domain.Alarm) *ClientMessage {
	return &ClientMessage{
		Type:  string(eventType),
		Alarm: FromDomain(alarm),
	}
}

// Envelope validation errors. Malformed envelopes are dropped without retry;
// they indicate a protocol mismatch, not a transient fault.
var (
	ErrMissingAlarm    = errors.New("envelope has no alarm payload")
	ErrMissingID       = errors.New("alarm id is required")
	ErrMissingSeq      = errors.New("sequence number is required")
	ErrMissingEmitted  = errors.New("emission timestamp is required")
	ErrUnknownType     = errors.New("unknown event type")
	ErrUnknownStatus   = errors.New("unknown alarm status")
	ErrUnknownCategory = errors.New("unknown alarm category")
)

// Validate checks required fields and enum membership of a broadcast envelope.
func (e *Envelope) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}

	if e.SeqNumber == 0 {
		return ErrMissingSeq
	}

	if e.EmittedAt.IsZero() {
		return ErrMissingEmitted
	}

	if e.Alarm == nil {
		return ErrMissingAlarm
	}

	if e.Alarm.ID == "" {
		return ErrMissingID
	}

	if !e.Alarm.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, e.Alarm.Status)
	}

	if !e.Alarm.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, e.Alarm.Category)
	}

	return nil
}

// ToDomain converts a wire alarm into the domain model.
func ToDomain(w *WireAlarm) *domain.Alarm {
	if w == nil {
		return nil
	}

	var agent string
	if w.AssignedAgentID != nil {
		agent = *w.AssignedAgentID
	}

	return &domain.Alarm{
		ID:              w.ID,
		Priority:        w.Priority,
		Category:        w.Category,
		Status:          w.Status,
		AssignedAgentID: agent,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// FromDomain converts a domain alarm into its wire representation.
func FromDomain(a *domain.Alarm) *WireAlarm {
	if a == nil {
		return nil
	}

	var agent *string
	if a.AssignedAgentID != "" {
		id := a.AssignedAgentID
		agent = &id
	}

	return &WireAlarm{
		ID:              a.ID,
		Priority:        a.Priority,
		Category:        a.Category,
		Status:          a.Status,
		AssignedAgentID: agent,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}
