package state

import (
	"errors"
	"sync"

	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

// Slot names.
const (
	SlotAuth     = "auth"
	SlotSearch   = "search"
	SlotProjects = "projects"
	SlotProfile  = "profile"
)

// ErrUnknownSlot is returned by Machine.Reset for a name it does not know.
var ErrUnknownSlot = errors.New("state: unknown slot")

// DefaultEventBuffer is the channel capacity used by Subscribe when given a
// non-positive size.
const DefaultEventBuffer = 32

// Login is the result of a completed authorization-code flow.
type Login struct {
	Identity intrasdk.Identity `json:"identity"`
	Profile  intrasdk.Profile  `json:"profile"`
}

// Event reports a transition of one slot. State holds a State[T] for the
// slot's value type.
type Event struct {
	Slot  string `json:"slot"`
	State any    `json:"state"`
}

// Snapshot is the state of every slot at one moment.
type Snapshot struct {
	Auth     State[Login]              `json:"auth"`
	Search   State[intrasdk.Profile]   `json:"search"`
	Projects State[[]intrasdk.Project] `json:"projects"`
	Profile  State[intrasdk.Profile]   `json:"profile"`
}

// Machine holds the four observable slots a front end renders: the login
// flow, the user search, the project listing and the own-profile view.
type Machine struct {
	Auth     *Slot[Login]
	Search   *Slot[intrasdk.Profile]
	Projects *Slot[[]intrasdk.Project]
	Profile  *Slot[intrasdk.Profile]

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

func NewMachine() *Machine {
	m := &Machine{subs: make(map[uint64]chan Event)}
	m.Auth = newSlot[Login](SlotAuth, m.broadcast)
	m.Search = newSlot[intrasdk.Profile](SlotSearch, m.broadcast)
	m.Projects = newSlot[[]intrasdk.Project](SlotProjects, m.broadcast)
	m.Profile = newSlot[intrasdk.Profile](SlotProfile, m.broadcast)
	return m
}

// Snapshot returns the current state of every slot.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Auth:     m.Auth.Current(),
		Search:   m.Search.Current(),
		Projects: m.Projects.Current(),
		Profile:  m.Profile.Current(),
	}
}

// Reset returns the named slot to Idle.
func (m *Machine) Reset(name string) error {
	switch name {
	case SlotAuth:
		m.Auth.Reset()
	case SlotSearch:
		m.Search.Reset()
	case SlotProjects:
		m.Projects.Reset()
	case SlotProfile:
		m.Profile.Reset()
	default:
		return ErrUnknownSlot
	}
	return nil
}

// ResetAll returns every slot to Idle.
func (m *Machine) ResetAll() {
	m.Auth.Reset()
	m.Search.Reset()
	m.Projects.Reset()
	m.Profile.Reset()
}

// Subscribe returns a channel of slot transitions and a function that ends
// the subscription and closes the channel. Slow subscribers miss events
// rather than block transitions; Snapshot recovers the full picture.
func (m *Machine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Machine) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
