package session

import (
	"sync"
)

// Listener receives every state the store commits, in commit order.
// Listeners must not call Dispatch.
type Listener func(State)

// Store owns one session's state. Dispatch is the only way to change it.
type Store struct {
	mu    sync.Mutex
	state State

	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an anonymous store
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Dispatch applies a to the current state and returns a snapshot of the
// result. When the reducer rejects a the error is returned alongside the
// state the store now holds.
func (s *Store) Dispatch(a Action) (State, error) {
	s.mu.Lock()
	next, err := reduce(s.state, a)
	s.state = next
	snapshot := next.Clone()

	// take the notify lock before releasing the state lock so listeners see
	// states in commit order
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, id := range s.listenerIDs() {
		s.listeners[id](snapshot.Clone())
	}
	return snapshot, err
}

func (s *Store) listenerIDs() []int {
	ids := make([]int, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if _, ok := s.listeners[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// State returns a deep copy of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn for future commits and returns its cancel func
func (s *Store) Subscribe(fn Listener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.listeners, id)
	}
}
