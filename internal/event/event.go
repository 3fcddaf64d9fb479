// Package event defines the session events delivered to listeners besides
// state and message updates.
package event

import (
	"fmt"
	"time"

	"github.com/codefionn/webmessaging/internal/errcode"
)

// Event is one notification. The set of implementations is closed.
type Event interface {
	fmt.Stringer
	isEvent()
}

// AgentTyping reports that the agent is typing for Duration.
type AgentTyping struct {
	Duration time.Duration
}

// HealthChecked answers SendHealthCheck.
type HealthChecked struct{}

// ConversationAutostart is the gateway's echo of the autostart event.
type ConversationAutostart struct{}

// ConversationDisconnect reports that the agent ended the conversation.
type ConversationDisconnect struct{}

// ConnectionClosed reports that the gateway closed every connection of the
// session, e.g. after StartNewChat.
type ConnectionClosed struct{}

// Authorized follows a successful Authorize.
type Authorized struct{}

// Logout follows a logout confirmed by the gateway.
type Logout struct{}

// ConversationCleared follows ClearConversation.
type ConversationCleared struct{}

// SignedIn reports that the user signed in on another connection.
type SignedIn struct{}

// ExistingAuthSessionCleared reports that configuring an authenticated
// session replaced an anonymous one.
type ExistingAuthSessionCleared struct{}

// Error is an asynchronous failure.
type Error struct {
	Code    errcode.ErrorCode
	Message string
	Action  errcode.CorrectiveAction
}

// FromError converts an *errcode.Error.
func FromError(err *errcode.Error) Error {
	return Error{Code: err.Code, Message: err.Message, Action: err.Action}
}

// NewError builds an Error with the action derived from code.
func NewError(code errcode.ErrorCode, message string) Error {
	return FromError(errcode.New(code, message))
}

func (e AgentTyping) String() string              { return fmt.Sprintf("AgentTyping(%s)", e.Duration) }
func (HealthChecked) String() string              { return "HealthChecked" }
func (ConversationAutostart) String() string      { return "ConversationAutostart" }
func (ConversationDisconnect) String() string     { return "ConversationDisconnect" }
func (ConnectionClosed) String() string           { return "ConnectionClosed" }
func (Authorized) String() string                 { return "Authorized" }
func (Logout) String() string                     { return "Logout" }
func (ConversationCleared) String() string        { return "ConversationCleared" }
func (SignedIn) String() string                   { return "SignedIn" }
func (ExistingAuthSessionCleared) String() string { return "ExistingAuthSessionCleared" }
func (e Error) String() string {
	return fmt.Sprintf("Error(%s, %q, %s)", e.Code, e.Message, e.Action)
}

func (AgentTyping) isEvent()                {}
func (HealthChecked) isEvent()              {}
func (ConversationAutostart) isEvent()      {}
func (ConversationDisconnect) isEvent()     {}
func (ConnectionClosed) isEvent()           {}
func (Authorized) isEvent()                 {}
func (Logout) isEvent()                     {}
func (ConversationCleared) isEvent()        {}
func (SignedIn) isEvent()                   {}
func (ExistingAuthSessionCleared) isEvent() {}
func (Error) isEvent()                      {}

var (
	_ Event = AgentTyping{}
	_ Event = HealthChecked{}
	_ Event = ConversationAutostart{}
	_ Event = ConversationDisconnect{}
	_ Event = ConnectionClosed{}
	_ Event = Authorized{}
	_ Event = Logout{}
	_ Event = ConversationCleared{}
	_ Event = SignedIn{}
	_ Event = ExistingAuthSessionCleared{}
	_ Event = Error{}
)
