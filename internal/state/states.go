// Package state owns the connection state of a messaging session and
// validates every transition against a fixed edge table.
package state

import (
	"fmt"

	"github.com/codefionn/webmessaging/internal/errcode"
)

// ConnectionState is the sealed set of session states. Every implementation
// is a comparable value type.
type ConnectionState interface {
	String() string

	// isConnectionState seals the interface.
	isConnectionState()
}

// Idle is the state of a session that never connected.
type Idle struct{}

// Connecting means the socket is being opened.
type Connecting struct{}

// Connected means the socket is open but the session is not configured yet.
type Connected struct{}

// Reconnecting means the socket failed and a retry is in progress. It
// absorbs intermediate Connecting and Connected reports.
type Reconnecting struct{}

// Configured is the working state: messages may be sent.
type Configured struct {
	Connected       bool
	NewSession      bool
	WasReconnecting bool
}

// ReadOnly means the conversation was disconnected by the far end. History
// stays readable, sending is rejected.
type ReadOnly struct{}

// Closing means a close was requested and the socket has not finished.
type Closing struct {
	Code   int
	Reason string
}

// Closed is the state after the socket closed.
type Closed struct {
	Code   int
	Reason string
}

// Error is the state after a session-fatal failure.
type Error struct {
	Code    errcode.ErrorCode
	Message string
}

func (Idle) String() string         { return "Idle" }
func (Connecting) String() string   { return "Connecting" }
func (Connected) String() string    { return "Connected" }
func (Reconnecting) String() string { return "Reconnecting" }
func (ReadOnly) String() string     { return "ReadOnly" }

func (s Configured) String() string {
	return fmt.Sprintf("Configured(connected=%t, newSession=%t, wasReconnecting=%t)",
		s.Connected, s.NewSession, s.WasReconnecting)
}

func (s Closing) String() string {
	return fmt.Sprintf("Closing(%d, %q)", s.Code, s.Reason)
}

func (s Closed) String() string {
	return fmt.Sprintf("Closed(%d, %q)", s.Code, s.Reason)
}

func (s Error) String() string {
	return fmt.Sprintf("Error(%s, %q)", s.Code, s.Message)
}

func (Idle) isConnectionState()         {}
func (Connecting) isConnectionState()   {}
func (Connected) isConnectionState()    {}
func (Reconnecting) isConnectionState() {}
func (Configured) isConnectionState()   {}
func (ReadOnly) isConnectionState()     {}
func (Closing) isConnectionState()      {}
func (Closed) isConnectionState()       {}
func (Error) isConnectionState()        {}

// Compile-time verification that all concrete states implement ConnectionState.
var (
	_ ConnectionState = Idle{}
	_ ConnectionState = Connecting{}
	_ ConnectionState = Connected{}
	_ ConnectionState = Reconnecting{}
	_ ConnectionState = Configured{}
	_ ConnectionState = ReadOnly{}
	_ ConnectionState = Closing{}
	_ ConnectionState = Closed{}
	_ ConnectionState = Error{}
)

// StateChange is one accepted transition.
type StateChange struct {
	Old ConnectionState
	New ConnectionState
}

// isActive reports states in which a socket may be open.
func isActive(s ConnectionState) bool {
	switch s.(type) {
	case Connecting, Connected, Reconnecting, Configured, ReadOnly, Closing:
		return true
	}
	return false
}
