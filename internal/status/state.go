package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nihinconnect/chatd/internal/bus"
)

// State is the realtime connection lifecycle state.
type State string

const (
	Closed     State = "CLOSED"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	// Down means the reconnect cap was exhausted; no further automatic
	// attempts are made until the session is restarted.
	Down State = "DOWN"
)

var validTransitions = map[State][]State{
	Closed:     {Connecting, Down},
	Connecting: {Open, Closed, Down},
	Open:       {Closed},
	Down:       {},
}

// Machine tracks the connection state and enforces legal transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Closed. The bus may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Closed, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, or errors if the move is illegal.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
