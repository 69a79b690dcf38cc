package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// subscriberBuffer is the fan-out channel depth per subscriber. A slow
// subscriber overflows it and simply misses envelopes; its gap detector
// recovers them through backfill.
const subscriberBuffer = 64

// subscriber is one connected agent's channel for a category.
type subscriber struct {
	// envelopes receives broadcast fan-out for the category.
	envelopes chan *protocol.Envelope
}

// categoryLog is the authoritative per-category event history.
type categoryLog struct {
	// lastSeq is the last assigned sequence number.
	lastSeq uint64
	// entries maps sequence number to the broadcast envelope, kept for
	// backfill replay.
	entries map[uint64]*protocol.Envelope
	// alarms is the current authoritative alarm state.
	alarms map[string]*domain.Alarm
	// subs is the set of connected subscribers.
	subs map[*subscriber]struct{}
}

// newCategoryLog returns an empty log.
func newCategoryLog() *categoryLog {
	return &categoryLog{
		entries: make(map[uint64]*protocol.Envelope),
		alarms:  make(map[string]*domain.Alarm),
		subs:    make(map[*subscriber]struct{}),
	}
}

// Service is the in-memory broadcast feed: it assigns per-category sequence
// numbers, fans envelopes out to subscribers, replays requested numbers for
// backfill and applies agent updates with server-authoritative timestamps.
type Service struct {
	// mu protects the per-category logs.
	mu sync.Mutex
	// logs holds one event log per category.
	logs map[domain.Category]*categoryLog
	// now supplies authoritative timestamps; replaceable in tests.
	now func() time.Time
}

// NewService returns an empty feed covering all categories.
func NewService() *Service {
	logs := make(map[domain.Category]*categoryLog, len(domain.Categories()))
	for _, category := range domain.Categories() {
		logs[category] = newCategoryLog()
	}

	return &Service{
		logs: logs,
		now:  time.Now,
	}
}

// Channel serves one agent's bidirectional stream. The first message must
// subscribe to a category; afterwards the stream carries broadcast fan-out
// and backfill responses downstream, and backfill requests plus public
// updates upstream.
func (s *Service) Channel(stream grpc.ServerStream) error {
	var first protocol.ClientMessage
	if err := stream.RecvMsg(&first); err != nil {
		return err
	}

	if first.Type != protocol.TypeSubscribe || !first.Category.Valid() {
		return status.Error(codes.InvalidArgument, "first message must subscribe to a valid category")
	}

	var (
		ctx      = stream.Context()
		category = first.Category
		sub      = &subscriber{envelopes: make(chan *protocol.Envelope, subscriberBuffer)}
		// direct carries this agent's private backfill responses.
		direct = make(chan *protocol.Envelope, subscriberBuffer)
		recvErr = make(chan error, 1)
	)

	s.addSubscriber(category, sub)
	defer s.removeSubscriber(category, sub)

	logger.InfoKV(ctx, "Agent subscribed", "category", category)

	go s.readClient(ctx, stream, category, direct, recvErr)

	// Single writer: fan-out and backfill responses share this loop, so
	// SendMsg is never called concurrently.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		case env := <-direct:
			if err := stream.SendMsg(env); err != nil {
				return err
			}
		case env := <-sub.envelopes:
			if err := stream.SendMsg(env); err != nil {
				return err
			}
		}
	}
}

// readClient consumes the agent's upstream messages until the stream ends.
func (s *Service) readClient(
	ctx context.Context,
	stream grpc.ServerStream,
	category domain.Category,
	direct chan<- *protocol.Envelope,
	recvErr chan<- error,
) {
	for {
		var msg protocol.ClientMessage
		if err := stream.RecvMsg(&msg); err != nil {
			recvErr <- err

			return
		}

		switch msg.Type {
		case protocol.TypeRequestAlarms:
			logger.InfoKV(ctx, "Backfill requested",
				"category", category,
				"seq_numbers", msg.SeqNumbers,
			)

			for _, env := range s.Replay(category, msg.SeqNumbers) {
				select {
				case direct <- env:
				case <-ctx.Done():
					return
				}
			}

		case string(protocol.EventUpdated), string(protocol.EventClosed):
			if err := s.ApplyUpdate(category, &msg); err != nil {
				logger.WarnKV(ctx, "Rejected agent update",
					"category", category,
					"error", err,
				)
			}

		default:
			logger.WarnKV(ctx, "Ignoring unknown client message", "type", msg.Type)
		}
	}
}

// addSubscriber registers a fan-out channel for the category.
func (s *Service) addSubscriber(category domain.Category, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[category].subs[sub] = struct{}{}
}

// removeSubscriber drops the fan-out channel.
func (s *Service) removeSubscriber(category domain.Category, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.logs[category].subs, sub)
}

// Publish assigns the next sequence number, records the envelope for
// backfill and fans it out. When a non-history alarm closes, a record of it
// is republished into the history category; the console engine itself stays
// agnostic of that product decision.
func (s *Service) Publish(evType protocol.EventType, alarm *domain.Alarm) *protocol.Envelope {
	env := s.publishOne(evType, alarm)

	if evType == protocol.EventClosed && alarm.Category != domain.CategoryHistory {
		record := alarm.Clone()
		record.Category = domain.CategoryHistory
		s.publishOne(protocol.EventCreated, record)
	}

	return env
}

// publishOne appends one envelope to its category log and fans it out.
func (s *Service) publishOne(evType protocol.EventType, alarm *domain.Alarm) *protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[alarm.Category]
	log.lastSeq++

	env := &protocol.Envelope{
		Type:      evType,
		SeqNumber: log.lastSeq,
		EmittedAt: s.now().UTC(),
		Alarm:     protocol.FromDomain(alarm),
	}

	log.entries[env.SeqNumber] = env

	switch evType {
	case protocol.EventCreated, protocol.EventUpdated:
		log.alarms[alarm.ID] = alarm.Clone()
	case protocol.EventClosed:
		delete(log.alarms, alarm.ID)
	}

	for sub := range log.subs {
		select {
		case sub.envelopes <- env:
		default:
			// Slow subscriber: drop and let backfill recover the gap.
		}
	}

	return env
}

// Replay returns the stored envelopes for the requested sequence numbers.
// Unknown numbers are skipped: the server may legitimately never have
// assigned them.
func (s *Service) Replay(category domain.Category, seqNumbers []uint64) []*protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[category]
	result := make([]*protocol.Envelope, 0, len(seqNumbers))

	for _, seq := range seqNumbers {
		if env, ok := log.entries[seq]; ok {
			result = append(result, env)
		}
	}

	return result
}

// Update validation errors.
var (
	errUnknownAlarm  = errors.New("unknown alarm")
	errMissingAlarm  = errors.New("update carries no alarm")
	errUnknownStatus = errors.New("unknown status in update")
)

// ApplyUpdate merges an agent's public update into the authoritative state
// and broadcasts the result. The client-supplied updated_at is advisory;
// the broadcast carries the server's own timestamp.
func (s *Service) ApplyUpdate(category domain.Category, msg *protocol.ClientMessage) error {
	if msg.Alarm == nil {
		return errMissingAlarm
	}

	incoming := protocol.ToDomain(msg.Alarm)
	if !incoming.Status.Valid() {
		return errUnknownStatus
	}

	s.mu.Lock()

	current, ok := s.logs[category].alarms[incoming.ID]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf("%w: %s", errUnknownAlarm, incoming.ID)
	}

	merged := current.Clone()
	merged.Status = incoming.Status
	merged.AssignedAgentID = incoming.AssignedAgentID
	merged.UpdatedAt = s.now().UTC()

	s.mu.Unlock()

	evType := protocol.EventType(msg.Type)
	s.Publish(evType, merged)

	return nil
}

// SimulateOnce performs one random feed mutation: raising a new alarm or
// updating/closing an existing one. It drives demo deployments of the feed.
func (s *Service) SimulateOnce(rng *rand.Rand) {
	categories := []domain.Category{domain.CategoryEmergency, domain.CategoryNonEmergency}
	category := categories[rng.Intn(len(categories))]

	s.mu.Lock()

	var existing []*domain.Alarm
	for _, a := range s.logs[category].alarms {
		existing = append(existing, a.Clone())
	}

	s.mu.Unlock()

	if len(existing) == 0 || rng.Intn(3) == 0 {
		now := s.now().UTC()
		s.Publish(protocol.EventCreated, &domain.Alarm{
			ID:        uuid.NewString(),
			Priority:  1 + rng.Intn(10),
			Category:  category,
			Status:    domain.StatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		})

		return
	}

	victim := existing[rng.Intn(len(existing))]
	victim.UpdatedAt = s.now().UTC()

	if rng.Intn(4) == 0 {
		victim.Status = domain.StatusClosed
		s.Publish(protocol.EventClosed, victim)

		return
	}

	victim.Priority = 1 + rng.Intn(10)
	s.Publish(protocol.EventUpdated, victim)
}
