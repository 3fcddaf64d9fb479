package messaging

import (
	"context"
	"errors"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/protocol"
)

func (s *session) sendMessage(text string, customAttrs map[string]string) error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	s.attrs.Add(customAttrs)

	frame := s.store.PrepareMessage(text, s.attrs.GetForSend(), s.attachments.UploadedAttachments())
	s.attachments.OnSending()
	s.attrs.OnSending()
	return s.sendOrFail(frame)
}

func (s *session) sendQuickReply(button protocol.ButtonResponse) error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	frame := s.store.PrepareQuickReply(button, s.attrs.GetForSend())
	s.attrs.OnSending()
	return s.sendOrFail(frame)
}

// sendOrFail fails the message that was just prepared when the socket
// does not take the frame.
func (s *session) sendOrFail(frame protocol.OnMessageRequest) error {
	err := s.send(frame)
	if err == nil {
		return nil
	}
	var ce *errcode.Error
	if !errors.As(err, &ce) {
		ce = errcode.New(errcode.WebsocketError, err.Error())
	}
	s.attrs.OnMessageError()
	s.store.OnMessageError(ce.Code, ce.Message)
	s.attachments.OnMessageError(ce.Code, ce.Message)
	return ce
}

func (s *session) attach(data []byte, fileName string, onProgress attachment.ProgressFunc) (string, error) {
	if err := s.machine.CheckConfigured(); err != nil {
		return "", err
	}
	id := s.newID()
	frame, err := s.attachments.Prepare(id, data, fileName, onProgress)
	if err != nil {
		return "", err
	}
	if err := s.send(frame); err != nil {
		s.attachments.OnError(id, errcode.WebsocketError, err.Error())
		return "", err
	}
	return id, nil
}

func (s *session) detach(id string) error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	req := s.attachments.Detach(id)
	if req.IsNone() {
		return nil
	}
	return s.send(req.UnsafeFromSome())
}

// fetchNextPage registers done for the outcome of the next history page.
// Only one page is fetched at a time; later callers share its outcome.
func (s *session) fetchNextPage(ctx context.Context, done chan error) error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	if s.store.StartOfConversation() {
		s.store.UpdateMessageHistory(nil, len(s.store.Conversation()))
		done <- nil
		return nil
	}

	s.history = append(s.history, done)
	if s.fetching {
		return nil
	}
	s.fetching = true

	epoch, page := s.epoch, s.store.NextPage()
	err := s.jwt.WithValidJwt(func(token string) {
		go func() {
			list, err := s.rest.FetchMessages(ctx, token, page)
			s.post(historyDoneMsg{epoch: epoch, list: list, err: err})
		}()
	})
	if err != nil {
		s.fetching = false
		s.history = s.history[:len(s.history)-1]
		return errcode.New(errcode.HistoryFetchFailure, err.Error())
	}
	return nil
}

func (s *session) onHistory(m historyDoneMsg) {
	if m.epoch != s.epoch {
		s.log.Debug("dropping history of a previous session")
		return
	}
	s.fetching = false
	waiting := s.history
	s.history = nil

	if m.err != nil {
		ce := errcode.New(errcode.HistoryFetchFailure, m.err.Error())
		s.emit(event.FromError(ce))
		for _, done := range waiting {
			done <- ce
		}
		return
	}

	page := make([]conversation.Message, 0, len(m.list.Entities))
	for _, sm := range m.list.Entities {
		if sm.Metadata["customMessageId"] == consts.HealthCheckID {
			continue
		}
		page = append(page, conversation.FromStructured(sm))
	}
	s.store.UpdateMessageHistory(page, m.list.Total)
	for _, done := range waiting {
		done <- nil
	}
}

// abandonHistory fails every caller waiting for a page.
func (s *session) abandonHistory(reason string) {
	s.fetching = false
	for _, done := range s.history {
		done <- errcode.New(errcode.HistoryFetchFailure, reason)
	}
	s.history = nil
}

func (s *session) sendHealthCheck() error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	now := s.now()
	if !s.lastHealthCheck.IsZero() && now.Sub(s.lastHealthCheck) < consts.HealthCheckCooldown {
		s.log.Debug("health check suppressed by cooldown")
		return nil
	}
	if err := s.send(protocol.NewEchoRequest(s.token, consts.HealthCheckID)); err != nil {
		return err
	}
	s.lastHealthCheck = now
	return nil
}

func (s *session) indicateTyping() error {
	if err := s.machine.CheckConfigured(); err != nil {
		return err
	}
	if s.deployment.IsSome() && !s.deployment.UnsafeFromSome().Messenger.Apps.Conversations.ShowUserTypingIndicator {
		return nil
	}
	now := s.now()
	if !s.lastTyping.IsZero() && now.Sub(s.lastTyping) < consts.TypingCooldown {
		return nil
	}
	if err := s.send(protocol.NewTypingRequest(s.token)); err != nil {
		return err
	}
	s.lastTyping = now
	return nil
}

func (s *session) startNewChat() error {
	if err := s.machine.CheckReadOnly(); err != nil {
		return err
	}
	if err := s.send(protocol.NewCloseSessionRequest(s.token)); err != nil {
		return err
	}
	s.startNewPending = true
	return nil
}

func (s *session) clearConversation() error {
	if err := s.machine.CheckConfiguredOrReadOnly(); err != nil {
		return err
	}
	if s.deployment.IsSome() && !s.deploymentHas((*config.DeploymentConfig).ClearEnabled) {
		ce := errcode.New(errcode.ClearConversationFailure, "clearing conversations is disabled for this deployment")
		s.emit(event.FromError(ce))
		return ce
	}
	if err := s.send(protocol.NewPresenceRequest(s.token, protocol.PresenceClear, nil)); err != nil {
		ce := errcode.New(errcode.ClearConversationFailure, err.Error())
		s.emit(event.FromError(ce))
		return ce
	}
	return nil
}
