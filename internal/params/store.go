package params

import (
	"sync"
	"sync/atomic"
)

// Change is published for every stored write.
type Change struct {
	ID    ID      `json:"id"`
	Value float64 `json:"value"`
}

// Store owns the current value of every parameter.
//
// Writers serialize on mu. Readers on the display and audio cadences only
// load the published snapshot pointer, so they never wait on a writer and
// always see a complete configuration.
type Store struct {
	mu      sync.Mutex
	limits  Limits
	current atomic.Pointer[values]
	subs    map[*Subscription]struct{}
}

// NewStore creates a store holding the defaults for the given limits.
func NewStore(l Limits) *Store {
	l = l.normalized()
	s := &Store{
		limits: l,
		subs:   make(map[*Subscription]struct{}),
	}
	v := defaults(l)
	s.current.Store(&v)
	return s
}

// SnapshotDisplay returns the display configuration in effect right now.
func (s *Store) SnapshotDisplay() Display {
	return s.current.Load().display
}

// SnapshotSound returns the sound configuration in effect right now.
func (s *Store) SnapshotSound() Sound {
	return s.current.Load().sound
}

// Limits returns the bounds the ranges are currently derived from.
func (s *Store) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Get returns the current value of id.
func (s *Store) Get(id ID) (float64, error) {
	if _, err := boundsFor(id, Limits{}.normalized()); err != nil {
		return 0, err
	}
	v := *s.current.Load()
	return *v.field(id), nil
}

// Set clamps value into the range of id, stores it and notifies subscribers.
// Out-of-range input is never an error; the stored value is returned.
func (s *Store) Set(id ID, value float64) (float64, error) {
	changes, err := s.Apply(map[ID]float64{id: value})
	if err != nil {
		return 0, err
	}
	return changes[0].Value, nil
}

// Apply writes several parameters as one update. Either every value of the
// batch becomes visible to readers or none does. Changes are returned in
// table order.
func (s *Store) Apply(updates map[ID]float64) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range updates {
		if _, err := boundsFor(id, s.limits); err != nil {
			return nil, err
		}
	}

	next := *s.current.Load()
	changes := make([]Change, 0, len(updates))
	for _, id := range All {
		raw, ok := updates[id]
		if !ok {
			continue
		}
		b, _ := boundsFor(id, s.limits)
		v := clamp(raw, b.min, b.max)
		*next.field(id) = v
		changes = append(changes, Change{ID: id, Value: v})
	}

	s.current.Store(&next)
	s.publishLocked(changes)
	return changes, nil
}

// Reset restores id to its default.
func (s *Store) Reset(id ID) (float64, error) {
	s.mu.Lock()
	b, err := boundsFor(id, s.limits)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.Set(id, b.def)
}

// ResetAll restores every parameter to its default in one update.
func (s *Store) ResetAll() []Change {
	s.mu.Lock()
	l := s.limits
	s.mu.Unlock()

	updates := make(map[ID]float64, len(All))
	for _, id := range All {
		b, _ := boundsFor(id, l)
		updates[id] = b.def
	}
	changes, _ := s.Apply(updates)
	return changes
}

// SetLimits replaces the limits and re-clamps the current values. Values
// that move because of the new bounds are published as changes.
func (s *Store) SetLimits(l Limits) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	l = l.normalized()
	oldLimits := s.limits
	s.limits = l

	cur := *s.current.Load()
	next := cur
	var changes []Change
	for _, id := range All {
		b, _ := boundsFor(id, l)
		v := clamp(*cur.field(id), b.min, b.max)
		// a low-pass left wide open keeps tracking the new Nyquist
		if id == LowPassFilter && *cur.field(id) >= oldLimits.Nyquist() {
			v = b.max
		}
		if v != *cur.field(id) {
			*next.field(id) = v
			changes = append(changes, Change{ID: id, Value: v})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	s.current.Store(&next)
	s.publishLocked(changes)
	return changes
}

// Parameters lists every parameter with its range and current value.
func (s *Store) Parameters() []Parameter {
	s.mu.Lock()
	l := s.limits
	s.mu.Unlock()

	v := *s.current.Load()
	out := make([]Parameter, 0, len(All))
	for _, id := range All {
		b, _ := boundsFor(id, l)
		out = append(out, Parameter{
			ID:      id,
			Value:   *v.field(id),
			Min:     b.min,
			Max:     b.max,
			Default: b.def,
		})
	}
	return out
}

// Subscription receives change notifications on C.
type Subscription struct {
	C <-chan Change

	ch      chan Change
	store   *Store
	dropped atomic.Uint64
	closed  bool
}

// Subscribe registers a new observer with the given channel buffer. A
// subscriber that falls behind loses notifications rather than stalling
// the writer.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	sub := &Subscription{C: ch, ch: ch, store: s}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Dropped returns how many notifications were discarded for this subscriber.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}

// Close unregisters the subscription and closes C.
func (sub *Subscription) Close() {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(s.subs, sub)
	close(sub.ch)
}

func (s *Store) publishLocked(changes []Change) {
	for sub := range s.subs {
		for _, c := range changes {
			select {
			case sub.ch <- c:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}
