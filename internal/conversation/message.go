// Package conversation keeps the ordered conversation log of a session, the
// pending outgoing message and the history pagination bookkeeping.
package conversation

import (
	"fmt"
	"time"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Direction tells who wrote a message.
type Direction int

const (
	// Inbound messages were written by the user.
	Inbound Direction = iota
	// Outbound messages were written by an agent or bot.
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "Inbound"
	}
	return "Outbound"
}

// Type tags the kind of a message.
type Type int

const (
	TypeText Type = iota
	TypeQuickReply
	TypeEvent
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeText:
		return "Text"
	case TypeQuickReply:
		return "QuickReply"
	case TypeEvent:
		return "Event"
	default:
		return "Unknown"
	}
}

// MessageState is the sealed delivery state of a message.
type MessageState interface {
	String() string

	// isMessageState seals the interface.
	isMessageState()
}

type (
	Idle    struct{}
	Sending struct{}
	Sent    struct{}
	Error   struct {
		Code    errcode.ErrorCode
		Message string
	}
)

func (Idle) String() string    { return "Idle" }
func (Sending) String() string { return "Sending" }
func (Sent) String() string    { return "Sent" }
func (s Error) String() string { return fmt.Sprintf("Error(%s, %q)", s.Code, s.Message) }

func (Idle) isMessageState()    {}
func (Sending) isMessageState() {}
func (Sent) isMessageState()    {}
func (Error) isMessageState()   {}

// Participant is the author of an outbound message.
type Participant struct {
	Name     string
	ImageURL string
}

// Message is one entry of the conversation.
type Message struct {
	ID           string
	Direction    Direction
	State        MessageState
	Type         Type
	Text         fn.Option[string]
	Timestamp    fn.Option[time.Time]
	Attachments  map[string]attachment.Attachment
	QuickReplies []protocol.ButtonResponse
	From         Participant
}

// FromStructured converts a gateway message, live or from history.
func FromStructured(sm protocol.StructuredMessage) Message {
	msg := Message{
		ID:        sm.ID,
		Direction: Outbound,
		State:     Sent{},
		Type:      TypeText,
		Text:      fn.None[string](),
		Timestamp: fn.None[time.Time](),
	}
	if id := sm.Metadata["customMessageId"]; id != "" {
		msg.ID = id
	}
	if sm.Direction == protocol.DirectionInbound {
		msg.Direction = Inbound
	}
	if sm.Text != "" {
		msg.Text = fn.Some(sm.Text)
	}
	if sm.Type == protocol.TypeEvent {
		msg.Type = TypeEvent
	}
	if sm.Channel != nil {
		if ts, err := time.Parse(time.RFC3339Nano, sm.Channel.Time); err == nil {
			msg.Timestamp = fn.Some(ts)
		}
		if sm.Channel.From != nil {
			msg.From = Participant{Name: sm.Channel.From.Nickname, ImageURL: sm.Channel.From.Image}
		}
	}

	for _, c := range sm.Content {
		switch c.ContentType {
		case protocol.ContentTypeAttachment:
			if c.Attachment == nil {
				continue
			}
			if msg.Attachments == nil {
				msg.Attachments = make(map[string]attachment.Attachment)
			}
			msg.Attachments[c.Attachment.ID] = attachment.Attachment{
				ID:       c.Attachment.ID,
				FileName: c.Attachment.Filename,
				State:    attachment.Sent{DownloadURL: c.Attachment.URL},
			}
		case protocol.ContentTypeQuickReply:
			if c.QuickReply == nil {
				continue
			}
			msg.Type = TypeQuickReply
			msg.QuickReplies = append(msg.QuickReplies, protocol.ButtonResponse{
				Text:    c.QuickReply.Text,
				Payload: c.QuickReply.Payload,
				Type:    protocol.TypeQuickReply,
			})
		case protocol.ContentTypeButtonResponse:
			if c.ButtonResponse == nil {
				continue
			}
			msg.Type = TypeQuickReply
			msg.QuickReplies = append(msg.QuickReplies, *c.ButtonResponse)
		}
	}
	return msg
}

// Event is the sealed set of conversation changes.
type Event interface {
	// isEvent seals the interface.
	isEvent()
}

type (
	MessageInserted   struct{ Message Message }
	MessageUpdated    struct{ Message Message }
	AttachmentUpdated struct{ Attachment attachment.Attachment }
	HistoryFetched    struct {
		Messages            []Message
		StartOfConversation bool
	}
)

func (MessageInserted) isEvent()   {}
func (MessageUpdated) isEvent()    {}
func (AttachmentUpdated) isEvent() {}
func (HistoryFetched) isEvent()    {}
