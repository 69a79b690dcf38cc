package stack

import (
	"slices"
	"sort"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// Event is a single alarm mutation applied to a category's store. Live
// broadcast events, backfill responses and local optimistic changes all
// reduce to this shape before they reach Apply.
type Event struct {
	// Type selects the mutation: created, updated or closed.
	Type protocol.EventType
	// Alarm is the full entity carried by the event.
	Alarm *domain.Alarm
}

// Store is the normalized state of one category: a map of alarms by ID plus
// a priority-ordered index of IDs, a last-applied sequence cursor and the
// set of sequence numbers known to be missing.
//
// Store is not safe for concurrent use; each category's pipeline serializes
// access to its own store.
type Store struct {
	// category is the stack this store belongs to.
	category domain.Category
	// alarms maps alarm ID to the confirmed alarm entity.
	alarms map[string]*domain.Alarm
	// order holds alarm IDs sorted by the domain comparator.
	order []string
	// closed remembers IDs whose terminal close has been applied, so a
	// stale create or update delivered later cannot resurrect them.
	closed map[string]struct{}
	// lastSeq is the highest broadcast sequence number applied so far.
	lastSeq uint64
	// pending is the set of sequence numbers known to exist but not yet
	// observed.
	pending map[uint64]struct{}
}

// New returns an empty store for the given category.
func New(category domain.Category) *Store {
	return &Store{
		category: category,
		alarms:   make(map[string]*domain.Alarm),
		closed:   make(map[string]struct{}),
		pending:  make(map[uint64]struct{}),
	}
}

// Category returns the stack this store belongs to.
func (s *Store) Category() domain.Category {
	return s.category
}

// Apply mutates the store according to the event and reports whether any
// state changed. It is duplicate-safe and idempotent:
//
//   - created: ignored if the ID already exists or was closed.
//   - updated: treated as created when the ID is unknown (the update beat
//     the create under unordered delivery); otherwise accepted only if its
//     updated timestamp is not older than the stored one, with ties won by
//     the incoming value. The ordered index is repositioned only when a
//     comparator-relevant field changed.
//   - closed: removes the ID unconditionally and records the tombstone;
//     closed is terminal and cannot be superseded by a stale reopen.
func (s *Store) Apply(ev Event) bool {
	if ev.Alarm == nil {
		return false
	}

	id := ev.Alarm.ID

	switch ev.Type {
	case protocol.EventCreated:
		if _, done := s.closed[id]; done {
			return false
		}

		if _, ok := s.alarms[id]; ok {
			return false
		}

		s.insert(ev.Alarm.Clone())

		return true

	case protocol.EventUpdated:
		if _, done := s.closed[id]; done {
			return false
		}

		current, ok := s.alarms[id]
		if !ok {
			// The update arrived ahead of its create.
			s.insert(ev.Alarm.Clone())

			return true
		}

		if ev.Alarm.UpdatedAt.Before(current.UpdatedAt) {
			// Stale update, the stored value is newer.
			return false
		}

		incoming := ev.Alarm.Clone()
		if domain.SameOrder(current, incoming) {
			s.alarms[id] = incoming

			return true
		}

		s.removeFromOrder(current)
		s.alarms[id] = incoming
		s.insertIntoOrder(incoming)

		return true

	case protocol.EventClosed:
		s.closed[id] = struct{}{}

		current, ok := s.alarms[id]
		if !ok {
			return false
		}

		s.removeFromOrder(current)
		delete(s.alarms, id)

		return true
	}

	return false
}

// insert adds a new alarm to the map and the ordered index.
func (s *Store) insert(a *domain.Alarm) {
	s.alarms[a.ID] = a
	s.insertIntoOrder(a)
}

// insertIntoOrder places the alarm ID at its comparator-correct position,
// located by binary search over the ordered index.
func (s *Store) insertIntoOrder(a *domain.Alarm) {
	pos := sort.Search(len(s.order), func(i int) bool {
		return !domain.Less(s.alarms[s.order[i]], a)
	})

	s.order = slices.Insert(s.order, pos, a.ID)
}

// removeFromOrder deletes the alarm's ID from the ordered index. The
// comparator is a strict total order, so binary search against the stored
// value lands on the exact position.
func (s *Store) removeFromOrder(a *domain.Alarm) {
	pos := sort.Search(len(s.order), func(i int) bool {
		return !domain.Less(s.alarms[s.order[i]], a)
	})

	if pos < len(s.order) && s.order[pos] == a.ID {
		s.order = slices.Delete(s.order, pos, pos+1)
	}
}

// Get returns a copy of the alarm with the given ID.
func (s *Store) Get(id string) (*domain.Alarm, bool) {
	a, ok := s.alarms[id]
	if !ok {
		return nil, false
	}

	return a.Clone(), true
}

// Len returns the number of alarms currently in the store.
func (s *Store) Len() int {
	return len(s.alarms)
}

// Snapshot returns copies of all alarms in priority order.
func (s *Store) Snapshot() []*domain.Alarm {
	result := make([]*domain.Alarm, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.alarms[id].Clone())
	}

	return result
}

// OrderedIDs returns a copy of the ordered index.
func (s *Store) OrderedIDs() []string {
	return slices.Clone(s.order)
}

// LastSeq returns the highest applied broadcast sequence number.
func (s *Store) LastSeq() uint64 {
	return s.lastSeq
}

// SetLastSeq advances the sequence cursor.
func (s *Store) SetLastSeq(seq uint64) {
	s.lastSeq = seq
}

// AddPending records a sequence number as known-missing.
func (s *Store) AddPending(seq uint64) {
	s.pending[seq] = struct{}{}
}

// ClearPending removes a fulfilled sequence number from the pending set.
func (s *Store) ClearPending(seq uint64) {
	delete(s.pending, seq)
}

// IsPending reports whether the sequence number is known-missing.
func (s *Store) IsPending(seq uint64) bool {
	_, ok := s.pending[seq]

	return ok
}

// HasPending reports whether any gap remains unfilled.
func (s *Store) HasPending() bool {
	return len(s.pending) > 0
}

// PendingSeqs returns the known-missing sequence numbers in ascending order.
func (s *Store) PendingSeqs() []uint64 {
	result := make([]uint64, 0, len(s.pending))
	for seq := range s.pending {
		result = append(result, seq)
	}

	slices.Sort(result)

	return result
}
