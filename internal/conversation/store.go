package conversation

import (
	"maps"
	"slices"
	"time"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Store is the conversation of one session. It is driven from the session's
// event context and is not safe for concurrent use.
type Store struct {
	token               string
	pending             Message
	log                 []Message
	nextPage            int
	startOfConversation bool
	listeners           []func(Event)
	newID               func() string
	logger              *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces uuid generation, used by tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// NewStore returns an empty conversation for the session token.
func NewStore(token string, log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.Global()
	}
	s := &Store{
		token:    token,
		nextPage: 1,
		newID:    func() string { return uuid.New().String() },
		logger:   log.WithPrefix("conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pending = s.newPending(nil)
	return s
}

// OnEvent registers a listener for conversation events.
func (s *Store) OnEvent(listener func(Event)) {
	s.listeners = append(s.listeners, listener)
}

// Conversation returns a copy of the log, oldest first.
func (s *Store) Conversation() []Message {
	return slices.Clone(s.log)
}

// Pending returns the message being composed.
func (s *Store) Pending() Message {
	return s.pending
}

// NextPage is the history page to fetch next.
func (s *Store) NextPage() int {
	return s.nextPage
}

// StartOfConversation reports whether all history has been fetched.
func (s *Store) StartOfConversation() bool {
	return s.startOfConversation
}

// PrepareMessage moves the pending message into the log as Sending and
// returns its frame. Only the uploaded attachments are sent; the others stay
// on the new pending message.
func (s *Store) PrepareMessage(text string, attrs map[string]string, uploaded []attachment.Attachment) protocol.OnMessageRequest {
	msg, content := s.take(uploaded)
	msg.Type = TypeText
	msg.Text = fn.Some(text)
	s.insert(msg)

	return protocol.NewOnMessageRequest(s.token, protocol.TextMessage{
		Text:    text,
		Content: content,
		Channel: protocol.NewChannel(attrs),
		Type:    protocol.TypeText,
	})
}

// PrepareQuickReply is PrepareMessage for a chosen quick reply.
func (s *Store) PrepareQuickReply(button protocol.ButtonResponse, attrs map[string]string) protocol.OnMessageRequest {
	msg, _ := s.take(nil)
	msg.Type = TypeQuickReply
	msg.Text = fn.Some(button.Text)
	msg.QuickReplies = []protocol.ButtonResponse{button}
	s.insert(msg)

	return protocol.NewOnMessageRequest(s.token, protocol.TextMessage{
		Text:    button.Text,
		Content: []protocol.Content{{ContentType: protocol.ContentTypeButtonResponse, ButtonResponse: &button}},
		Channel: protocol.NewChannel(attrs),
		Type:    protocol.TypeStructured,
	})
}

// take turns the pending slot into a Sending message carrying the uploaded
// attachments and recycles the slot.
func (s *Store) take(uploaded []attachment.Attachment) (Message, []protocol.Content) {
	msg := s.pending
	msg.Direction = Inbound
	msg.State = Sending{}
	msg.Timestamp = fn.None[time.Time]()

	remaining := maps.Clone(msg.Attachments)
	msg.Attachments = nil
	var content []protocol.Content
	for _, a := range uploaded {
		if msg.Attachments == nil {
			msg.Attachments = make(map[string]attachment.Attachment)
		}
		msg.Attachments[a.ID] = a
		delete(remaining, a.ID)
		content = append(content, protocol.Content{
			ContentType: protocol.ContentTypeAttachment,
			Attachment:  &protocol.AttachmentRef{ID: a.ID},
		})
	}

	s.pending = s.newPending(remaining)
	return msg, content
}

// Update applies a message pushed by the gateway. Outbound messages are
// appended. Inbound messages replace the entry with the same id, or the
// Sending message they echo (same text and attachments), and are appended
// otherwise.
func (s *Store) Update(msg Message) {
	if msg.Direction == Inbound {
		idx := slices.IndexFunc(s.log, func(m Message) bool { return m.ID == msg.ID })
		if idx < 0 {
			idx = s.echoedSending(msg)
		}
		if idx >= 0 {
			s.log[idx] = msg
			s.recomputeNextPage()
			s.publish(MessageUpdated{Message: msg})
			return
		}
	}
	s.insert(msg)
}

// UpdateMessageHistory merges one history page, newest first as the gateway
// returns it, in front of the log. Entries whose timestamp is already in the
// log are dropped.
func (s *Store) UpdateMessageHistory(page []Message, totalOnServer int) {
	before := len(s.log)

	seen := make(map[int64]struct{}, len(s.log))
	for _, m := range s.log {
		m.Timestamp.WhenSome(func(ts time.Time) {
			seen[ts.UnixNano()] = struct{}{}
		})
	}

	fresh := make([]Message, 0, len(page))
	for _, m := range page {
		if m.Timestamp.IsSome() {
			if _, dup := seen[m.Timestamp.UnsafeFromSome().UnixNano()]; dup {
				continue
			}
		}
		fresh = append(fresh, m)
	}
	slices.Reverse(fresh)

	s.log = append(slices.Clone(fresh), s.log...)
	s.startOfConversation = totalOnServer-before <= consts.DefaultPageSize
	s.recomputeNextPage()
	s.logger.Debug("history merged: %d new, %d total, start=%t", len(fresh), len(s.log), s.startOfConversation)
	s.publish(HistoryFetched{Messages: fresh, StartOfConversation: s.startOfConversation})
}

// UpdateAttachmentState mirrors a pipeline change onto the pending message
// or onto the sent message that owns the attachment.
func (s *Store) UpdateAttachmentState(a attachment.Attachment) {
	if isStaged(a.State) {
		s.pending.Attachments[a.ID] = a
	} else {
		delete(s.pending.Attachments, a.ID)
	}

	for i := len(s.log) - 1; i >= 0; i-- {
		if _, ok := s.log[i].Attachments[a.ID]; ok {
			updated := maps.Clone(s.log[i].Attachments)
			updated[a.ID] = a
			s.log[i].Attachments = updated
			break
		}
	}
	s.publish(AttachmentUpdated{Attachment: a})
}

// OnMessageError fails the outstanding send.
func (s *Store) OnMessageError(code errcode.ErrorCode, message string) {
	idx := s.lastSending()
	if idx < 0 {
		return
	}
	s.log[idx].State = Error{Code: code, Message: message}
	s.publish(MessageUpdated{Message: s.log[idx]})
}

// InvalidateConversationCache drops the log and resets pagination.
func (s *Store) InvalidateConversationCache() {
	s.log = nil
	s.nextPage = 1
	s.startOfConversation = false
	s.pending = s.newPending(nil)
}

func (s *Store) insert(msg Message) {
	s.log = append(s.log, msg)
	s.recomputeNextPage()
	s.publish(MessageInserted{Message: msg})
}

func (s *Store) lastSending() int {
	for i := len(s.log) - 1; i >= 0; i-- {
		if _, ok := s.log[i].State.(Sending); ok {
			return i
		}
	}
	return -1
}

// echoedSending finds the newest Sending message whose content equals msg.
func (s *Store) echoedSending(msg Message) int {
	for i := len(s.log) - 1; i >= 0; i-- {
		m := s.log[i]
		if _, ok := m.State.(Sending); !ok {
			continue
		}
		if m.Text.UnwrapOr("") == msg.Text.UnwrapOr("") && sameAttachments(m, msg) {
			return i
		}
	}
	return -1
}

func sameAttachments(a, b Message) bool {
	if len(a.Attachments) != len(b.Attachments) {
		return false
	}
	for id := range a.Attachments {
		if _, ok := b.Attachments[id]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) recomputeNextPage() {
	s.nextPage = len(s.log)/consts.DefaultPageSize + 1
}

func (s *Store) newPending(attachments map[string]attachment.Attachment) Message {
	if attachments == nil {
		attachments = make(map[string]attachment.Attachment)
	}
	return Message{
		ID:          s.newID(),
		Direction:   Inbound,
		State:       Idle{},
		Type:        TypeText,
		Text:        fn.None[string](),
		Timestamp:   fn.None[time.Time](),
		Attachments: attachments,
	}
}

func (s *Store) publish(ev Event) {
	for _, listener := range s.listeners {
		listener(ev)
	}
}

// isStaged reports states of an attachment that is still being composed.
func isStaged(st attachment.State) bool {
	switch st.(type) {
	case attachment.Presigning, attachment.Uploading, attachment.Uploaded, attachment.Detaching:
		return true
	}
	return false
}
