package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func newStore() (*Store, *recorder) {
	n := 0
	s := NewStore("tok", nil, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	r := &recorder{}
	s.OnEvent(func(ev Event) { r.events = append(r.events, ev) })
	return s, r
}

func outbound(id string, ts time.Time) Message {
	return Message{
		ID:        id,
		Direction: Outbound,
		State:     Sent{},
		Text:      fn.Some("agent says " + id),
		Timestamp: fn.Some(ts),
	}
}

// TestPrepareMessage tests that each prepared message gets its own id
func TestPrepareMessage(t *testing.T) {
	s, r := newStore()

	first := s.PrepareMessage("hi", nil, nil)
	second := s.PrepareMessage("hi", nil, nil)

	conv := s.Conversation()
	require.Len(t, conv, 2)
	assert.NotEqual(t, conv[0].ID, conv[1].ID)
	assert.Equal(t, Sending{}, conv[0].State)
	assert.Equal(t, Inbound, conv[0].Direction)
	assert.Equal(t, "hi", conv[0].Text.UnwrapOr(""))

	assert.Equal(t, protocol.NewOnMessageRequest("tok", protocol.TextMessage{Text: "hi", Type: protocol.TypeText}), first)
	assert.Equal(t, first, second)

	require.Len(t, r.events, 2)
	inserted, ok := r.events[0].(MessageInserted)
	require.True(t, ok)
	assert.Equal(t, Sending{}, inserted.Message.State)
}

func TestPrepareMessageWithAttachmentsAndAttributes(t *testing.T) {
	s, _ := newStore()
	s.UpdateAttachmentState(attachment.Attachment{ID: "up", State: attachment.Uploaded{DownloadURL: "u"}})
	s.UpdateAttachmentState(attachment.Attachment{ID: "busy", State: attachment.Uploading{}})

	uploaded := []attachment.Attachment{{ID: "up", State: attachment.Uploaded{DownloadURL: "u"}}}
	req := s.PrepareMessage("see file", map[string]string{"k": "v"}, uploaded)

	assert.Equal(t, []protocol.Content{{ContentType: protocol.ContentTypeAttachment, Attachment: &protocol.AttachmentRef{ID: "up"}}}, req.Message.Content)
	assert.Equal(t, map[string]string{"k": "v"}, req.Message.Channel.Metadata.CustomAttributes)

	sent := s.Conversation()[0]
	assert.Contains(t, sent.Attachments, "up")
	assert.NotContains(t, sent.Attachments, "busy")

	pending := s.Pending()
	assert.Contains(t, pending.Attachments, "busy")
	assert.NotContains(t, pending.Attachments, "up")
}

func TestPrepareQuickReply(t *testing.T) {
	s, _ := newStore()
	button := protocol.ButtonResponse{Text: "Yes", Payload: "yes", Type: protocol.TypeQuickReply}

	req := s.PrepareQuickReply(button, nil)
	assert.Equal(t, protocol.TypeStructured, req.Message.Type)
	require.Len(t, req.Message.Content, 1)
	assert.Equal(t, &button, req.Message.Content[0].ButtonResponse)

	msg := s.Conversation()[0]
	assert.Equal(t, TypeQuickReply, msg.Type)
	assert.Equal(t, []protocol.ButtonResponse{button}, msg.QuickReplies)
}

// TestNextPage tests that pagination advances with the log size
func TestNextPage(t *testing.T) {
	s, _ := newStore()
	assert.Equal(t, 1, s.NextPage())

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < consts.DefaultPageSize+1; i++ {
		s.Update(outbound(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, 2, s.NextPage())
}

func TestUpdateInboundReplacesByID(t *testing.T) {
	s, r := newStore()
	s.PrepareMessage("hello", nil, nil)
	id := s.Conversation()[0].ID

	s.Update(Message{ID: id, Direction: Inbound, State: Sent{}, Text: fn.Some("hello")})
	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, Sent{}, conv[0].State)
	_, ok := r.events[len(r.events)-1].(MessageUpdated)
	assert.True(t, ok)
}

func TestUpdateInboundMatchesOutstandingSend(t *testing.T) {
	s, _ := newStore()
	s.PrepareMessage("hello", nil, nil)

	s.Update(Message{ID: "server-id", Direction: Inbound, State: Sent{}, Text: fn.Some("hello")})
	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "server-id", conv[0].ID)

	s.Update(Message{ID: "other", Direction: Inbound, State: Sent{}})
	assert.Len(t, s.Conversation(), 2)
}

func TestUpdateUnrelatedInboundIsAppended(t *testing.T) {
	s, r := newStore()
	s.PrepareMessage("Hello", nil, nil)
	pending := s.Conversation()[0]

	s.Update(Message{ID: "other-device-1", Direction: Inbound, State: Sent{}, Text: fn.Some("from web")})
	conv := s.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, pending, conv[0])
	assert.Equal(t, Sending{}, conv[0].State)
	assert.Equal(t, "other-device-1", conv[1].ID)
	_, ok := r.events[len(r.events)-1].(MessageInserted)
	assert.True(t, ok)

	s.Update(Message{ID: "server-id", Direction: Inbound, State: Sent{}, Text: fn.Some("Hello")})
	conv = s.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "server-id", conv[0].ID)
	assert.Equal(t, Sent{}, conv[0].State)
}

func TestUpdateEchoNeedsSameAttachments(t *testing.T) {
	s, _ := newStore()
	s.PrepareMessage("look", nil, []attachment.Attachment{{ID: "att-1", FileName: "a.png"}})

	s.Update(Message{ID: "srv-1", Direction: Inbound, State: Sent{}, Text: fn.Some("look")})
	require.Len(t, s.Conversation(), 2)

	s.Update(Message{
		ID: "srv-2", Direction: Inbound, State: Sent{}, Text: fn.Some("look"),
		Attachments: map[string]attachment.Attachment{"att-1": {ID: "att-1"}},
	})
	conv := s.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "srv-2", conv[0].ID)
}

// TestUpdateMessageHistory tests dedup, ordering and start detection
func TestUpdateMessageHistory(t *testing.T) {
	s, r := newStore()
	base := time.Unix(1_700_000_000, 0)

	live := outbound("live", base.Add(10*time.Second))
	s.Update(live)

	// newest first, the way the gateway returns a page
	page := []Message{
		outbound("live-copy", base.Add(10*time.Second)),
		outbound("h2", base.Add(2*time.Second)),
		outbound("h1", base.Add(1*time.Second)),
	}
	s.UpdateMessageHistory(page, 30)

	conv := s.Conversation()
	require.Len(t, conv, 3)
	assert.Equal(t, []string{"h1", "h2", "live"}, []string{conv[0].ID, conv[1].ID, conv[2].ID})
	assert.False(t, s.StartOfConversation())

	fetched, ok := r.events[len(r.events)-1].(HistoryFetched)
	require.True(t, ok)
	require.Len(t, fetched.Messages, 2)
	assert.Equal(t, "h1", fetched.Messages[0].ID)
	assert.False(t, fetched.StartOfConversation)
}

func TestHistoryStartOfConversation(t *testing.T) {
	s, r := newStore()
	s.UpdateMessageHistory(nil, 0)
	assert.True(t, s.StartOfConversation())
	assert.Equal(t, HistoryFetched{Messages: []Message{}, StartOfConversation: true}, r.events[0])
}

func TestOnMessageError(t *testing.T) {
	s, r := newStore()
	s.PrepareMessage("too long", nil, nil)

	s.OnMessageError(errcode.MessageTooLong, "limit 4000")
	assert.Equal(t, Error{Code: errcode.MessageTooLong, Message: "limit 4000"}, s.Conversation()[0].State)
	_, ok := r.events[len(r.events)-1].(MessageUpdated)
	assert.True(t, ok)

	before := len(r.events)
	s.OnMessageError(errcode.MessageTooLong, "again")
	assert.Len(t, r.events, before)
}

func TestAttachmentStateMirrored(t *testing.T) {
	s, r := newStore()
	a := attachment.Attachment{ID: "a1", State: attachment.Uploaded{DownloadURL: "u"}}
	s.UpdateAttachmentState(a)
	s.PrepareMessage("file", nil, []attachment.Attachment{a})

	s.UpdateAttachmentState(attachment.Attachment{ID: "a1", State: attachment.Sent{DownloadURL: "u"}})
	assert.Equal(t, attachment.Sent{DownloadURL: "u"}, s.Conversation()[0].Attachments["a1"].State)
	assert.Empty(t, s.Pending().Attachments)

	s.UpdateAttachmentState(attachment.Attachment{ID: "a2", State: attachment.Presigning{}})
	s.UpdateAttachmentState(attachment.Attachment{ID: "a2", State: attachment.Detached{}})
	assert.Empty(t, s.Pending().Attachments)

	_, ok := r.events[len(r.events)-1].(AttachmentUpdated)
	assert.True(t, ok)
}

func TestInvalidateConversationCache(t *testing.T) {
	s, _ := newStore()
	s.PrepareMessage("x", nil, nil)
	s.UpdateMessageHistory(nil, 1)

	s.InvalidateConversationCache()
	assert.Empty(t, s.Conversation())
	assert.Equal(t, 1, s.NextPage())
	assert.False(t, s.StartOfConversation())
}

func TestFromStructured(t *testing.T) {
	sm := protocol.StructuredMessage{
		ID:        "srv",
		Type:      protocol.TypeStructured,
		Text:      "Pick one",
		Direction: protocol.DirectionOutbound,
		Channel: &protocol.StructuredChannel{
			Time: "2024-05-01T10:00:00.123Z",
			From: &protocol.Participant{Nickname: "Bot", Image: "https://img"},
		},
		Content: []protocol.StructuredContent{
			{ContentType: protocol.ContentTypeQuickReply, QuickReply: &protocol.QuickReplyContent{Text: "A", Payload: "a"}},
			{ContentType: protocol.ContentTypeAttachment, Attachment: &protocol.AttachmentContent{ID: "f", URL: "https://f", Filename: "f.pdf"}},
		},
		Metadata: map[string]string{"customMessageId": "client-id"},
	}

	msg := FromStructured(sm)
	assert.Equal(t, "client-id", msg.ID)
	assert.Equal(t, Outbound, msg.Direction)
	assert.Equal(t, TypeQuickReply, msg.Type)
	assert.Equal(t, "Pick one", msg.Text.UnwrapOr(""))
	assert.Equal(t, Participant{Name: "Bot", ImageURL: "https://img"}, msg.From)
	require.True(t, msg.Timestamp.IsSome())
	assert.Equal(t, int64(1714557600), msg.Timestamp.UnsafeFromSome().Unix())
	assert.Equal(t, []protocol.ButtonResponse{{Text: "A", Payload: "a", Type: protocol.TypeQuickReply}}, msg.QuickReplies)
	assert.Equal(t, attachment.Sent{DownloadURL: "https://f"}, msg.Attachments["f"].State)
}
