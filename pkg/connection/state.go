package connection

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIllegalTransition is returned for a transition the machine does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an authenticated, privilege-checked session.
	StateConnected

	// StateError indicates the last attempt or session failed. The
	// supervisor may still retry from here.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Transition describes a state change. Err carries the cause for
// transitions into ERROR or DISCONNECTED.
type Transition struct {
	From State
	To   State
	Err  error
}

// legal lists the allowed targets per state.
var legal = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateError:        {StateConnecting},
	StateConnecting:   {StateConnected, StateDisconnected, StateError},
	StateConnected:    {StateDisconnected, StateError},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks the connection state and notifies observers of every
// transition. Observers run synchronously, in registration order, on the
// goroutine that made the transition.
type Machine struct {
	mu        sync.Mutex
	state     State
	lastErr   error
	observers []func(Transition)

	// serializes transitions so observers see them in order
	transMu sync.Mutex
}

// NewMachine creates a machine in StateDisconnected.
func NewMachine() *Machine {
	return &Machine{state: StateDisconnected}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error of the most recent failing transition.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// OnTransition registers an observer.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Transition moves the machine to the target state and notifies observers.
func (m *Machine) Transition(to State, cause error) error {
	m.transMu.Lock()
	defer m.transMu.Unlock()

	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.state = to
	if cause != nil {
		m.lastErr = cause
	}
	observers := make([]func(Transition), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	t := Transition{From: from, To: to, Err: cause}
	for _, fn := range observers {
		fn(t)
	}
	return nil
}
