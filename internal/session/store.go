package session

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Store owns the event history and the sticky table. Every accepted
// command appends to the history, and replaying the history from an empty
// store reproduces the sticky table.
type Store struct {
	mu       sync.RWMutex
	history  []Event
	stickies map[string]*Sticky
	lastZ    int64
	ids      IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator used for stickies created without an id.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		stickies: make(map[string]*Sticky),
		ids:      &SequentialIDs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the history and the sticky table ordered by z.
func (s *Store) Snapshot() ([]Event, []Sticky) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]Event, len(s.history))
	copy(history, s.history)

	stickies := make([]Sticky, 0, len(s.stickies))
	for _, st := range s.stickies {
		stickies = append(stickies, *st)
	}
	sort.Slice(stickies, func(i, j int) bool { return stickies[i].Z < stickies[j].Z })

	return history, stickies
}

// Len returns the history length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Sticky returns the current state of one sticky.
func (s *Store) Sticky(id string) (Sticky, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stickies[id]
	if !ok {
		return Sticky{}, false
	}
	return *st, true
}

// Apply executes a command and returns the events to broadcast. Commands
// that change nothing return nil.
func (s *Store) Apply(cmd Command) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(cmd, false)
}

// Replay builds a store from a recorded history. Recorded ids and z values
// are kept as they are.
func Replay(history []Event, opts ...Option) (*Store, error) {
	s := NewStore(opts...)
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ev := range history {
		cmd, err := ParseCommand(ev.Bytes())
		if err != nil {
			return nil, fmt.Errorf("replay event %d: %w", i, err)
		}
		if c, ok := cmd.(*CreateSticky); ok {
			if c.Z != nil && (*c.Z < 1 || *c.Z != math.Trunc(*c.Z)) {
				return nil, fmt.Errorf("replay event %d: %w: z must be a positive integer, got %v", i, ErrMalformed, *c.Z)
			}
			if g, ok := s.ids.(*SequentialIDs); ok && c.ID != "" {
				g.observe(c.ID)
			}
		}
		s.apply(cmd, true)
	}
	return s, nil
}

func (s *Store) apply(cmd Command, replay bool) []Event {
	switch c := cmd.(type) {
	case *Passthrough:
		ev := Event{Type: c.Type, raw: c.Raw}
		return s.append(ev)

	case *CreateSticky:
		return s.create(c, replay)

	case *EditSticky:
		st, ok := s.stickies[c.ID]
		if !ok {
			return nil
		}
		st.HTML = c.HTML
		return s.append(newStickyEvent(ActionEdit, stickyEdited{
			Type: TypeSticky, Action: ActionEdit, ID: st.ID, HTML: st.HTML,
		}))

	case *MoveSticky:
		st, ok := s.stickies[c.ID]
		if !ok {
			return nil
		}
		if c.X != nil {
			st.X = *c.X
		}
		if c.Y != nil {
			st.Y = *c.Y
		}
		return s.append(newStickyEvent(ActionMove, stickyMoved{
			Type: TypeSticky, Action: ActionMove, ID: st.ID, X: st.X, Y: st.Y,
		}))

	case *DeleteSticky:
		if _, ok := s.stickies[c.ID]; !ok {
			return nil
		}
		delete(s.stickies, c.ID)
		return s.append(newStickyEvent(ActionDelete, stickyDeleted{
			Type: TypeSticky, Action: ActionDelete, ID: c.ID,
		}))
	}

	// ClientsRequest and anything else carry no durable state.
	return nil
}

func (s *Store) create(c *CreateSticky, replay bool) []Event {
	id := c.ID
	if id == "" {
		id = s.ids.NextID()
		for s.stickies[id] != nil {
			id = s.ids.NextID()
		}
	} else if _, exists := s.stickies[id]; exists {
		return nil
	}

	z := s.lastZ + 1
	if replay && c.Z != nil {
		z = int64(*c.Z)
	}
	if z > s.lastZ {
		s.lastZ = z
	}

	st := &Sticky{ID: id, X: DefaultStickyX, Y: DefaultStickyY, Z: z}
	if c.X != nil {
		st.X = *c.X
	}
	if c.Y != nil {
		st.Y = *c.Y
	}
	if c.HTML != nil {
		st.HTML = *c.HTML
	}
	s.stickies[id] = st

	return s.append(newStickyEvent(ActionCreate, stickyCreated{
		Type: TypeSticky, Action: ActionCreate,
		ID: st.ID, X: st.X, Y: st.Y, HTML: st.HTML, Z: st.Z,
	}))
}

func (s *Store) append(ev Event) []Event {
	s.history = append(s.history, ev)
	return []Event{ev}
}
