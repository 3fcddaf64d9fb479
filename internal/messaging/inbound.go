package messaging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/jwt"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/state"
)

// onText decodes one frame and routes it to exactly one handler.
// Frames that cannot be decoded are logged and dropped.
func (s *session) onText(ctx context.Context, text string) {
	in, err := protocol.Decode(text)
	if err != nil {
		s.log.Warn("dropping frame: %v", err)
		return
	}

	switch m := in.(type) {
	case protocol.SessionResponse:
		s.onSessionResponse(m)
	case protocol.JwtResponse:
		s.jwt.Set(jwt.Record{Token: m.Jwt, Expiry: m.Exp})
	case protocol.PresignedURLResponse:
		s.attachments.Upload(m)
	case protocol.UploadSuccessEvent:
		s.attachments.OnUploadSuccess(m)
	case protocol.UploadFailureEvent:
		s.attachments.OnError(m.AttachmentID, errcode.FromCode(m.ErrorCode), m.ErrorMessage)
	case protocol.GenerateURLError:
		s.attachments.OnError(m.AttachmentID, errcode.FromCode(m.ErrorCode), m.ErrorMessage)
	case protocol.AttachmentDeletedResponse:
		s.onAttachmentDeleted(m.AttachmentID)
	case protocol.StructuredMessage:
		s.onStructured(m)
	case protocol.TooManyRequestsErrorMessage:
		code := errcode.RequestRateTooHigh
		if m.ErrorCode != 0 {
			code = errcode.FromCode(m.ErrorCode)
		}
		s.failMessage(code, fmt.Sprintf("%s (retry after %ds)", m.ErrorMessage, m.RetryAfter))
	case protocol.SessionExpiredEvent:
		s.terminate(errcode.SessionHasExpired, "session has expired")
	case protocol.ConnectionClosedEvent:
		s.onConnectionClosed()
	case protocol.LogoutEvent:
		s.auth.Clear()
		s.authenticated = false
		s.emit(event.Logout{})
		_ = s.disconnect()
	case protocol.SessionClearedEvent:
		s.emit(event.ConversationCleared{})
		_ = s.disconnect()
		s.rotateToken()
	case protocol.ErrorResponse:
		s.onErrorResponse(ctx, m)
	default:
		s.log.Warn("no route for %T", in)
	}
}

func (s *session) onSessionResponse(r protocol.SessionResponse) {
	s.configuring = false
	s.configureRetries = 0
	s.attrs.SetMaxCustomDataBytes(r.MaxCustomData())

	var err error
	if r.ReadOnly {
		_, err = s.machine.Transition(state.ReadOnlyEvent{})
	} else {
		_, err = s.machine.Transition(state.SessionConfiguredEvent{Connected: r.Connected, NewSession: r.NewSession})
	}
	if err != nil {
		return
	}
	s.reconnect.Clear()

	if r.ClearedExistingSession {
		s.emit(event.ExistingAuthSessionCleared{})
	}
	if !r.ReadOnly && r.NewSession && s.autostart() {
		s.sendAutostart()
	}
}

func (s *session) autostart() bool {
	return s.deploymentHas((*config.DeploymentConfig).AutostartEnabled)
}

func (s *session) deploymentHas(flag func(*config.DeploymentConfig) bool) bool {
	return s.deployment.IsSome() && flag(s.deployment.UnsafeFromSome())
}

func (s *session) sendAutostart() {
	attrs := s.attrs.GetForSend()
	if err := s.send(protocol.NewPresenceRequest(s.token, protocol.PresenceJoin, attrs)); err != nil {
		s.log.Warn("autostart not sent: %v", err)
		return
	}
	if len(attrs) > 0 {
		s.attrs.OnSending()
	}
}

func (s *session) onAttachmentDeleted(id string) {
	a, ok := s.attachments.Get(id)
	if !ok {
		return
	}
	if _, detaching := a.State.(attachment.Detaching); detaching {
		s.attachments.OnDetached(id)
		return
	}
	s.attachments.OnDeleted(id)
}

func (s *session) onStructured(sm protocol.StructuredMessage) {
	if sm.Metadata["customMessageId"] == consts.HealthCheckID {
		s.emit(event.HealthChecked{})
		return
	}

	if sm.Type == protocol.TypeEvent {
		if sm.Direction == protocol.DirectionInbound {
			s.attrs.OnSent()
		}
		for _, ev := range sm.Events {
			s.onStructuredEvent(sm.Direction, ev)
		}
		return
	}

	if sm.Direction == protocol.DirectionInbound {
		urls := make(map[string]string)
		for _, c := range sm.Content {
			if c.ContentType == protocol.ContentTypeAttachment && c.Attachment != nil {
				urls[c.Attachment.ID] = c.Attachment.URL
			}
		}
		s.attachments.OnSent(urls)
		s.attrs.OnSent()
	}
	s.store.Update(conversation.FromStructured(sm))
}

func (s *session) onStructuredEvent(direction string, ev protocol.StructuredEvent) {
	switch ev.EventType {
	case protocol.EventTypeTyping:
		if direction == protocol.DirectionInbound {
			return
		}
		d := consts.TypingIndicatorDuration
		if ev.Typing != nil && ev.Typing.Duration > 0 {
			d = time.Duration(ev.Typing.Duration) * time.Millisecond
		}
		s.emit(event.AgentTyping{Duration: d})

	case protocol.EventTypePresence:
		if ev.Presence == nil {
			return
		}
		switch ev.Presence.Type {
		case protocol.PresenceJoin:
			s.emit(event.ConversationAutostart{})
		case protocol.PresenceDisconnect:
			s.emit(event.ConversationDisconnect{})
			if s.deploymentHas((*config.DeploymentConfig).ReadOnlyOnDisconnect) {
				_, _ = s.machine.Transition(state.ReadOnlyEvent{})
			}
		case protocol.PresenceSignIn:
			s.emit(event.SignedIn{})
		default:
			s.log.Debug("ignoring presence %s", ev.Presence.Type)
		}

	default:
		s.log.Debug("ignoring event %s", ev.EventType)
	}
}

func (s *session) onConnectionClosed() {
	if s.startNewPending {
		s.cleanup()
		s.configure(true)
		return
	}
	s.emit(event.ConnectionClosed{})
	_ = s.disconnect()
}

func (s *session) onErrorResponse(ctx context.Context, r protocol.ErrorResponse) {
	code := errcode.FromCode(r.Code)
	switch {
	case s.configuring && s.authenticated && code == errcode.FromHTTPStatus(http.StatusUnauthorized):
		s.retryConfigure(ctx, code, r.Message)
	case code.IsSessionFatal():
		s.terminate(code, r.Message)
	case code.IsMessageScoped():
		s.failMessage(code, r.Message)
	case code.IsAttachmentScoped():
		s.failAttachment(code, r.Message)
	case s.configuring:
		s.terminate(code, r.Message)
	default:
		s.log.Warn("gateway error %s: %s", code, r.Message)
		s.emit(event.NewError(code, r.Message))
	}
}

// failAttachment fails the attachments awaiting a presigned URL, or the
// in-flight message when the error came back for a send.
func (s *session) failAttachment(code errcode.ErrorCode, message string) {
	if !s.attachments.OnPresignError(code, message) {
		s.failMessage(code, message)
		return
	}
	s.emit(event.NewError(code, message))
}

// failMessage fails the in-flight message and whatever rode on it.
func (s *session) failMessage(code errcode.ErrorCode, message string) {
	if code == errcode.CustomAttributeSizeTooLarge {
		s.attrs.OnError()
	} else {
		s.attrs.OnMessageError()
	}
	s.store.OnMessageError(code, message)
	s.attachments.OnMessageError(code, message)
	s.emit(event.NewError(code, message))
}
