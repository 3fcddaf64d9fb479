package state

import (
	"errors"
	"fmt"

	"github.com/codefionn/webmessaging/internal/logger"
)

// ErrIllegalState is wrapped by every rejected transition and every failed
// precondition check.
var ErrIllegalState = errors.New("illegal state")

// IllegalStateError describes a rejected transition or precondition.
type IllegalStateError struct {
	Current ConnectionState
	Event   Event
	Detail  string
}

func (e *IllegalStateError) Error() string {
	if e.Event != nil {
		return fmt.Sprintf("illegal state: %s not allowed in %s", e.Event, e.Current)
	}
	return fmt.Sprintf("illegal state: %s (current %s)", e.Detail, e.Current)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

// Option configures a Machine.
type Option func(*Machine)

// WithStrict makes rejected transitions panic instead of returning an error.
func WithStrict() Option {
	return func(m *Machine) {
		m.strict = true
	}
}

// WithLogger sets the logger used for transition tracing.
func WithLogger(l *logger.Logger) Option {
	return func(m *Machine) {
		m.log = l.WithPrefix("state")
	}
}

// Machine holds the single ConnectionState of a session. It is not safe for
// concurrent use; the session serialises all calls.
type Machine struct {
	current    ConnectionState
	stateSubs  []func(ConnectionState)
	changeSubs []func(StateChange)
	strict     bool
	log        *logger.Logger
}

// NewMachine returns a machine in Idle.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		current: Idle{},
		log:     logger.Global().WithPrefix("state"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the current state.
func (m *Machine) Current() ConnectionState {
	return m.current
}

// OnState registers a listener for the raw new state.
func (m *Machine) OnState(fn func(ConnectionState)) {
	m.stateSubs = append(m.stateSubs, fn)
}

// OnStateChange registers a listener for old/new pairs.
func (m *Machine) OnStateChange(fn func(StateChange)) {
	m.changeSubs = append(m.changeSubs, fn)
}

// Transition applies ev. Rejected events leave the state untouched and
// return an *IllegalStateError. Accepted events that change the state
// notify the raw-state listeners first, then the change listeners.
func (m *Machine) Transition(ev Event) (ConnectionState, error) {
	old := m.current
	nextState, ok := next(old, ev)
	if !ok {
		err := &IllegalStateError{Current: old, Event: ev}
		if m.strict {
			panic(err)
		}
		m.log.Warn("%v", err)
		return old, err
	}
	if nextState == old {
		return old, nil
	}

	m.current = nextState
	m.log.Debug("%s -> %s (%s)", old, nextState, ev)

	for _, fn := range m.stateSubs {
		fn(nextState)
	}
	change := StateChange{Old: old, New: nextState}
	for _, fn := range m.changeSubs {
		fn(change)
	}
	return nextState, nil
}

func (m *Machine) precondition(ok bool, detail string) error {
	if ok {
		return nil
	}
	return &IllegalStateError{Current: m.current, Detail: detail}
}

// CheckConnectable fails unless a new connection may be opened.
func (m *Machine) CheckConnectable() error {
	switch m.current.(type) {
	case Idle, Closed, Error:
		return nil
	}
	return m.precondition(false, "connect requires Idle, Closed or Error")
}

// CheckConfigured fails unless the session is Configured.
func (m *Machine) CheckConfigured() error {
	_, ok := m.current.(Configured)
	return m.precondition(ok, "session is not configured")
}

// CheckConfiguredOrReadOnly fails unless the session is Configured or ReadOnly.
func (m *Machine) CheckConfiguredOrReadOnly() error {
	switch m.current.(type) {
	case Configured, ReadOnly:
		return nil
	}
	return m.precondition(false, "session is neither configured nor read-only")
}

// CheckReadOnly fails unless the session is ReadOnly.
func (m *Machine) CheckReadOnly() error {
	_, ok := m.current.(ReadOnly)
	return m.precondition(ok, "session is not read-only")
}

// CheckActive fails for Idle and Closed.
func (m *Machine) CheckActive() error {
	switch m.current.(type) {
	case Idle, Closed:
		return m.precondition(false, "session is not active")
	}
	return nil
}

// IsReconnecting reports whether a retry is in progress.
func (m *Machine) IsReconnecting() bool {
	_, ok := m.current.(Reconnecting)
	return ok
}

// IsInactive reports Idle, Closed and Error.
func (m *Machine) IsInactive() bool {
	switch m.current.(type) {
	case Idle, Closed, Error:
		return true
	}
	return false
}
