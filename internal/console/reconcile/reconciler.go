package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/alertdesk/alarm-console/internal/console/stack"
	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// SendFunc delivers a client message on the category's private request
// channel. It is invoked from background goroutines and must be safe for
// concurrent use.
type SendFunc func(ctx context.Context, msg *protocol.ClientMessage) error

// Config controls the backfill retry policy.
type Config struct {
	// InitialInterval is the delay before the first backfill retry.
	InitialInterval time.Duration
	// MaxInterval caps the doubling retry interval.
	MaxInterval time.Duration
	// MaxAttempts bounds the number of backfill requests issued for a gap
	// before the category is marked degraded.
	MaxAttempts int
}

// Default retry policy values.
const (
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 8 * time.Second
	DefaultMaxAttempts     = 6
)

// maxGapWindow bounds how many missing sequence numbers one gap may
// materialize into the pending set and a single backfill request. A cursor
// far behind the feed, such as a fresh category observing a high first
// sequence number, recovers at most this many of the newest events.
const maxGapWindow = 1024

// withDefaults fills unset fields with the default retry policy.
func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}

	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	return c
}

// Reconciler serializes one category's pipeline: it applies sequenced
// envelopes to the category's store, detects sequence gaps, issues backfill
// requests with exponential backoff and marks the category degraded when
// the retry ceiling is exceeded.
//
// All state mutation happens under a single mutex, so no two mutations of
// the same stack ever overlap. Transport sends run on their own goroutines
// and never block the apply path.
type Reconciler struct {
	// category is the stack this reconciler owns.
	category domain.Category
	// store holds the category's normalized alarm state.
	store *stack.Store
	// send issues messages on the private request channel.
	send SendFunc
	// cfg is the backfill retry policy.
	cfg Config
	// ctx governs background sends and retry timers.
	ctx context.Context
	// onApplied is notified after every applied server envelope. It runs
	// under the pipeline mutex and must not call back into the reconciler.
	onApplied func(*protocol.Envelope, bool)

	// mu serializes the category pipeline.
	mu sync.Mutex
	// timer is the pending backfill retry timer, nil when idle.
	timer *time.Timer
	// attempts counts backfill requests issued for the current gap episode.
	attempts int
	// interval is the current retry delay.
	interval time.Duration
	// degraded is set once the retry ceiling is exceeded with gaps left.
	degraded bool
	// torn is set on Close and stops all further work.
	torn bool
}

// New creates a reconciler for the category. The context bounds the
// lifetime of background backfill sends and retry timers.
func New(ctx context.Context, category domain.Category, send SendFunc, cfg Config) *Reconciler {
	return &Reconciler{
		category: category,
		store:    stack.New(category),
		send:     send,
		cfg:      cfg.withDefaults(),
		ctx:      ctx,
	}
}

// SetAppliedObserver registers a callback invoked after each server
// envelope is applied, with the envelope and whether state changed.
func (r *Reconciler) SetAppliedObserver(fn func(env *protocol.Envelope, changed bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onApplied = fn
}

// Handle processes one validated envelope against the stack's sequence
// cursor:
//
//   - seq == last+1: apply and advance the cursor.
//   - seq > last+1: record the skipped interval as pending (bounded to the
//     newest maxGapWindow numbers), advance the cursor immediately (the
//     latest event is not held back), apply, and issue a backfill request
//     for the missing numbers.
//   - seq <= last: duplicate unless the number is pending, in which case it
//     is a backfill fulfillment.
func (r *Reconciler) Handle(ctx context.Context, env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.torn {
		return
	}

	var (
		seq  = env.SeqNumber
		last = r.store.LastSeq()
	)

	switch {
	case seq == last+1:
		r.applyLocked(ctx, env)
		r.store.SetLastSeq(seq)

	case seq > last+1:
		from := last + 1
		if seq-from > maxGapWindow {
			from = seq - maxGapWindow

			logger.WarnKV(ctx, "Gap exceeds backfill window, skipping oldest",
				"category", r.category,
				"skipped_from", last+1,
				"skipped_to", from-1,
			)
		}

		for n := from; n < seq; n++ {
			r.store.AddPending(n)
		}

		r.store.SetLastSeq(seq)
		r.applyLocked(ctx, env)

		logger.WarnKV(ctx, "Sequence gap detected",
			"category", r.category,
			"from_seq", from,
			"to_seq", seq-1,
		)

		r.issueBackfillLocked()

	default:
		if !r.store.IsPending(seq) {
			logger.DebugKV(ctx, "Discarding duplicate envelope",
				"category", r.category,
				"seq_number", seq,
			)

			return
		}

		// Backfill fulfillment.
		r.applyLocked(ctx, env)
		r.store.ClearPending(seq)

		if !r.store.HasPending() {
			r.resetRetryLocked()
			logger.InfoKV(ctx, "All sequence gaps resolved", "category", r.category)
		}
	}
}

// applyLocked funnels the envelope through the store's apply path and
// notifies the applied observer.
func (r *Reconciler) applyLocked(ctx context.Context, env *protocol.Envelope) {
	changed := r.store.Apply(stack.Event{
		Type:  env.Type,
		Alarm: protocol.ToDomain(env.Alarm),
	})

	if changed {
		logger.DebugKV(ctx, "Applied envelope",
			"category", r.category,
			"type", env.Type,
			"seq_number", env.SeqNumber,
			"alarm_id", env.Alarm.ID,
		)
	}

	if r.onApplied != nil {
		r.onApplied(env, changed)
	}
}

// ApplyLocal applies a locally-originated event through the same serialized
// path as server envelopes. It does not touch the sequence cursor.
func (r *Reconciler) ApplyLocal(ev stack.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.torn {
		return false
	}

	return r.store.Apply(ev)
}

// issueBackfillLocked sends a backfill request for the pending numbers on a
// fresh goroutine and (re)arms the retry timer with the initial interval.
func (r *Reconciler) issueBackfillLocked() {
	if !r.store.HasPending() {
		return
	}

	r.sendBackfill(r.store.PendingSeqs())

	r.attempts = 1
	r.interval = r.cfg.InitialInterval
	// A fresh gap episode restarts recovery; the category is no longer
	// sitting on exhausted retries.
	r.degraded = false

	if r.timer != nil {
		r.timer.Stop()
	}

	r.timer = time.AfterFunc(r.interval, r.retry)
}

// retry is the backoff timer callback: it re-issues the backfill request
// for the remaining pending numbers or degrades the category once the
// attempt ceiling is reached.
func (r *Reconciler) retry() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timer = nil

	if r.torn {
		return
	}

	if !r.store.HasPending() {
		r.resetRetryLocked()

		return
	}

	if r.attempts >= r.cfg.MaxAttempts {
		r.degraded = true

		logger.ErrorKV(r.ctx, "Backfill retries exhausted, category degraded",
			"category", r.category,
			"attempts", r.attempts,
			"unresolved", r.store.PendingSeqs(),
		)

		return
	}

	r.sendBackfill(r.store.PendingSeqs())

	r.attempts++

	r.interval *= 2
	if r.interval > r.cfg.MaxInterval {
		r.interval = r.cfg.MaxInterval
	}

	r.timer = time.AfterFunc(r.interval, r.retry)
}

// sendBackfill dispatches the request without blocking the pipeline.
func (r *Reconciler) sendBackfill(seqs []uint64) {
	msg := protocol.NewBackfillRequest(seqs)

	go func() {
		if err := r.send(r.ctx, msg); err != nil {
			logger.WarnKV(r.ctx, "Backfill request failed",
				"category", r.category,
				"seq_numbers", seqs,
				"error", err,
			)
		}
	}()
}

// resetRetryLocked cancels the timer and clears the gap episode state.
func (r *Reconciler) resetRetryLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	r.attempts = 0
	r.interval = r.cfg.InitialInterval
	r.degraded = false
}

// ForceReconcile re-issues backfill for any still-pending numbers with a
// fresh retry budget. The console calls it whenever the transport reports a
// transition from disconnected to connected.
func (r *Reconciler) ForceReconcile(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.torn {
		return
	}

	r.resetRetryLocked()

	if !r.store.HasPending() {
		return
	}

	logger.InfoKV(ctx, "Forced reconciliation pass",
		"category", r.category,
		"pending", r.store.PendingSeqs(),
	)

	r.issueBackfillLocked()
}

// Close tears the pipeline down and cancels any retry timer.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.torn = true

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Get returns a copy of the alarm with the given ID.
func (r *Reconciler) Get(id string) (*domain.Alarm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Get(id)
}

// Snapshot returns the category's alarms in priority order.
func (r *Reconciler) Snapshot() []*domain.Alarm {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Snapshot()
}

// LastSeq returns the highest applied sequence number.
func (r *Reconciler) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.LastSeq()
}

// PendingSeqs returns the unresolved sequence numbers in ascending order.
func (r *Reconciler) PendingSeqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.PendingSeqs()
}

// Backfilling reports whether any sequence gap is unresolved.
func (r *Reconciler) Backfilling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.HasPending()
}

// Degraded reports whether the retry ceiling was exceeded with gaps left.
// The pending entries stay visible rather than being discarded, since the
// server may legitimately skip sequence numbers.
func (r *Reconciler) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.degraded
}
