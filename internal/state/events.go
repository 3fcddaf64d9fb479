package state

import "github.com/codefionn/webmessaging/internal/errcode"

// Event drives the state machine. The set of implementations is closed.
type Event interface {
	String() string

	// isEvent seals the interface.
	isEvent()
}

// ConnectEvent is sent when the socket starts opening.
type ConnectEvent struct{}

// ConnectionOpenedEvent is sent when the socket reports open.
type ConnectionOpenedEvent struct{}

// SessionConfiguredEvent is sent on a successful session response.
type SessionConfiguredEvent struct {
	Connected  bool
	NewSession bool
}

// ReadOnlyEvent is sent when the conversation became read-only.
type ReadOnlyEvent struct{}

// ReconnectEvent is sent when a socket failure triggers a retry.
type ReconnectEvent struct{}

// ClosingEvent is sent when a close was requested.
type ClosingEvent struct {
	Code   int
	Reason string
}

// ClosedEvent is sent when the socket closed.
type ClosedEvent struct {
	Code   int
	Reason string
}

// ErrorEvent is sent on a session-fatal failure.
type ErrorEvent struct {
	Code    errcode.ErrorCode
	Message string
}

func (ConnectEvent) String() string           { return "OnConnect" }
func (ConnectionOpenedEvent) String() string  { return "OnConnectionOpened" }
func (SessionConfiguredEvent) String() string { return "OnSessionConfigured" }
func (ReadOnlyEvent) String() string          { return "OnReadOnly" }
func (ReconnectEvent) String() string         { return "OnReconnect" }
func (ClosingEvent) String() string           { return "OnClosing" }
func (ClosedEvent) String() string            { return "OnClosed" }
func (ErrorEvent) String() string             { return "OnError" }

func (ConnectEvent) isEvent()           {}
func (ConnectionOpenedEvent) isEvent()  {}
func (SessionConfiguredEvent) isEvent() {}
func (ReadOnlyEvent) isEvent()          {}
func (ReconnectEvent) isEvent()         {}
func (ClosingEvent) isEvent()           {}
func (ClosedEvent) isEvent()            {}
func (ErrorEvent) isEvent()             {}

// next returns the state reached from cur through ev and whether the edge
// exists.
func next(cur ConnectionState, ev Event) (ConnectionState, bool) {
	switch e := ev.(type) {
	case ConnectEvent:
		switch cur.(type) {
		case Idle, Closed, Error:
			return Connecting{}, true
		case Reconnecting:
			return cur, true
		}

	case ConnectionOpenedEvent:
		switch cur.(type) {
		case Connecting:
			return Connected{}, true
		case Reconnecting:
			return cur, true
		}

	case SessionConfiguredEvent:
		switch cur.(type) {
		case Connected, Configured, ReadOnly:
			return Configured{Connected: e.Connected, NewSession: e.NewSession}, true
		case Reconnecting:
			return Configured{Connected: e.Connected, NewSession: e.NewSession, WasReconnecting: true}, true
		}

	case ReadOnlyEvent:
		switch cur.(type) {
		case Connected, Configured, Reconnecting:
			return ReadOnly{}, true
		}

	case ReconnectEvent:
		switch cur.(type) {
		case Connected, Configured, ReadOnly, Reconnecting:
			return Reconnecting{}, true
		}

	case ClosingEvent:
		switch cur.(type) {
		case Connecting, Connected, Configured, ReadOnly, Reconnecting, Error:
			return Closing{Code: e.Code, Reason: e.Reason}, true
		}

	case ClosedEvent:
		if isActive(cur) {
			return Closed{Code: e.Code, Reason: e.Reason}, true
		}

	case ErrorEvent:
		if isActive(cur) {
			return Error{Code: e.Code, Message: e.Message}, true
		}
	}
	return cur, false
}
