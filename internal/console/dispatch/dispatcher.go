package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// Sink receives validated envelopes for one category. Implemented by the
// category's sequence reconciler.
type Sink interface {
	Handle(ctx context.Context, env *protocol.Envelope)
}

// Dispatcher validation errors.
var (
	// ErrMalformed wraps decode and validation failures. Malformed input is
	// dropped without retry: reprocessing cannot recover it.
	ErrMalformed = errors.New("malformed envelope")
	// ErrNoSink is returned when no pipeline is registered for the
	// envelope's category.
	ErrNoSink = errors.New("no pipeline for category")
)

// Dispatcher validates raw inbound envelopes and routes them, by alarm
// category, into the category's reconciler pipeline. It holds no mutable
// state of its own.
type Dispatcher struct {
	// sinks maps each category to its pipeline.
	sinks map[domain.Category]Sink
}

// New builds a dispatcher over the given category pipelines.
func New(sinks map[domain.Category]Sink) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
	}
}

// Dispatch decodes and validates one raw envelope and forwards it to the
// reconciler of the alarm's category. A returned error is non-fatal: the
// message was dropped and no state changed.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := env.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	sink, ok := d.sinks[env.Alarm.Category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSink, env.Alarm.Category)
	}

	sink.Handle(ctx, &env)

	return nil
}
