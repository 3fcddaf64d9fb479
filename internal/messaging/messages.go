package messaging

import (
	"context"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/protocol"
)

// Messages processed by the session actor. Socket messages carry the
// generation of the socket that produced them; reports from a replaced
// socket are dropped.
type (
	// callMsg runs a public operation inside the event context.
	callMsg struct {
		name string
		fn   func(ctx context.Context) error
	}

	socketOpenedMsg struct {
		gen int
	}

	socketTextMsg struct {
		gen  int
		text string
	}

	socketFailedMsg struct {
		gen int
		err error
	}

	socketClosingMsg struct {
		gen    int
		code   int
		reason string
	}

	socketClosedMsg struct {
		gen    int
		code   int
		reason string
	}

	uploadDoneMsg struct {
		result attachment.UploadResult
	}

	historyDoneMsg struct {
		epoch int
		list  *protocol.MessageEntityList
		err   error
	}

	reconnectReadyMsg struct{}

	refreshDoneMsg struct {
		gen int
		err error
	}
)

func (m callMsg) Type() string         { return "call:" + m.name }
func (socketOpenedMsg) Type() string   { return "socketOpened" }
func (socketTextMsg) Type() string     { return "socketText" }
func (socketFailedMsg) Type() string   { return "socketFailed" }
func (socketClosingMsg) Type() string  { return "socketClosing" }
func (socketClosedMsg) Type() string   { return "socketClosed" }
func (uploadDoneMsg) Type() string     { return "uploadDone" }
func (historyDoneMsg) Type() string    { return "historyDone" }
func (reconnectReadyMsg) Type() string { return "reconnectReady" }
func (refreshDoneMsg) Type() string    { return "refreshDone" }
