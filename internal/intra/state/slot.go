package state

import (
	"sync"

	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

// Phase is the lifecycle phase of a slot.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Failure describes why a slot is in PhaseError. Kind lets a UI pick a
// dedicated rendering, e.g. "no such user" for user_not_found.
type Failure struct {
	Kind    intrasdk.ErrorKind `json:"kind,omitempty"`
	Message string             `json:"message"`
}

// State is a snapshot of one slot.
type State[T any] struct {
	Phase Phase    `json:"phase"`
	Value *T       `json:"value,omitempty"`
	Error *Failure `json:"error,omitempty"`
}

// Ticket identifies one Start of a slot. Only the latest ticket may move the
// slot out of Loading.
type Ticket uint64

// Slot is a single Idle/Loading/Success/Error state cell.
//
// Results are only accepted for the ticket of the latest Start. Reset also
// retires that ticket, so a Succeed or Fail arriving after a Reset is
// dropped and the slot stays Idle rather than showing a result nobody is
// waiting for.
type Slot[T any] struct {
	name    string
	publish func(Event)

	mu    sync.Mutex
	gen   uint64
	state State[T]
}

func newSlot[T any](name string, publish func(Event)) *Slot[T] {
	return &Slot[T]{
		name:    name,
		publish: publish,
		state:   State[T]{Phase: PhaseIdle},
	}
}

// Name returns the slot's name as used in events and URLs.
func (s *Slot[T]) Name() string { return s.name }

// Start moves the slot to Loading and returns the ticket the eventual
// Succeed or Fail must present. Any earlier ticket becomes stale.
func (s *Slot[T]) Start() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.set(State[T]{Phase: PhaseLoading})
	return Ticket(s.gen)
}

// Succeed records v if t is still the current ticket. It reports whether the
// result was applied.
func (s *Slot[T]) Succeed(t Ticket, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(t) != s.gen {
		return false
	}
	s.set(State[T]{Phase: PhaseSuccess, Value: &v})
	return true
}

// Fail records an error if t is still the current ticket.
func (s *Slot[T]) Fail(t Ticket, kind intrasdk.ErrorKind, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(t) != s.gen {
		return false
	}
	s.set(State[T]{Phase: PhaseError, Error: &Failure{Kind: kind, Message: message}})
	return true
}

// Reset returns the slot to Idle and discards any result still in flight.
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.set(State[T]{Phase: PhaseIdle})
}

// Current returns the slot's state.
func (s *Slot[T]) Current() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// set must be called with mu held, so events leave in transition order.
func (s *Slot[T]) set(st State[T]) {
	s.state = st
	if s.publish != nil {
		s.publish(Event{Slot: s.name, State: st})
	}
}
