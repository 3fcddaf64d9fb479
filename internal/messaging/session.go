package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/codefionn/webmessaging/internal/actor"
	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/attributes"
	"github.com/codefionn/webmessaging/internal/auth"
	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/jwt"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/reconnect"
	"github.com/codefionn/webmessaging/internal/rest"
	"github.com/codefionn/webmessaging/internal/state"
	"github.com/codefionn/webmessaging/internal/transport"
	"github.com/codefionn/webmessaging/internal/vault"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// session owns every component of one messaging session. It only runs
// inside the actor, so none of its fields need locking.
type session struct {
	cfg     *config.Configuration
	factory transport.Factory
	rest    *rest.Client
	auth    *auth.Handler
	vault   vault.Vault
	now     func() time.Time
	newID   func() string
	log     *logger.Logger
	ref     *actor.Ref

	deployment fn.Option[*config.DeploymentConfig]
	storeOpts  []conversation.Option

	token       string
	machine     *state.Machine
	store       *conversation.Store
	attachments *attachment.Pipeline
	attrs       *attributes.Queue
	jwt         *jwt.Cache
	reconnect   *reconnect.Policy

	sock  transport.Socket
	gen   int
	epoch int

	authenticated    bool
	configuring      bool
	startNew         bool
	startNewPending  bool
	configureRetries int

	lastHealthCheck time.Time
	lastTyping      time.Time

	fetching bool
	history  []chan error

	messageListeners []func(conversation.Event)
	eventListeners   []func(event.Event)
}

var (
	_ actor.Actor        = (*session)(nil)
	_ transport.Listener = (*socketListener)(nil)
)

func (s *session) ID() string {
	return "messaging"
}

func (s *session) Start(ctx context.Context) error {
	return nil
}

func (s *session) Stop(ctx context.Context) error {
	s.closeSocket(consts.NormalClosureCode, consts.NormalClosureReason)
	s.attachments.ClearAll()
	s.reconnect.Clear()
	s.abandonHistory("client closed")
	return nil
}

// Receive is the single dispatch point of the session.
func (s *session) Receive(ctx context.Context, msg actor.Message) error {
	switch m := msg.(type) {
	case callMsg:
		return m.fn(ctx)

	case socketOpenedMsg:
		if m.gen == s.gen {
			s.onOpen()
		}
	case socketTextMsg:
		if m.gen == s.gen {
			s.onText(ctx, m.text)
		}
	case socketFailedMsg:
		if m.gen == s.gen {
			s.onFailure(m.err)
		}
	case socketClosingMsg:
		if m.gen == s.gen {
			s.onClosing(m.code, m.reason)
		}
	case socketClosedMsg:
		if m.gen == s.gen {
			s.onClosed(m.code, m.reason)
		}

	case uploadDoneMsg:
		s.attachments.HandleUploadResult(m.result)
	case historyDoneMsg:
		s.onHistory(m)
	case reconnectReadyMsg:
		s.onReconnectReady()
	case refreshDoneMsg:
		s.onRefreshed(m)

	default:
		s.log.Warn("unhandled message %s", msg.Type())
	}
	return nil
}

// post hands a message from a background goroutine to the actor.
func (s *session) post(msg actor.Message) {
	if err := s.ref.Send(msg); err != nil {
		s.log.Debug("%s dropped: %v", msg.Type(), err)
	}
}

// bindToken creates the token-scoped components.
func (s *session) bindToken(token string) {
	s.token = token
	s.log.Redact(token)

	s.store = conversation.NewStore(token, s.log, s.storeOpts...)
	s.store.OnEvent(s.publishMessage)

	s.attachments = attachment.NewPipeline(token, s.rest, func(res attachment.UploadResult) {
		s.post(uploadDoneMsg{result: res})
	}, s.log)
	s.attachments.OnUpdate(func(a attachment.Attachment) {
		s.store.UpdateAttachmentState(a)
	})
	s.deployment.WhenSome(func(dc *config.DeploymentConfig) {
		s.attachments.SetProfile(fn.Some(dc.AttachmentProfile()))
	})
}

func (s *session) setDeployment(dc *config.DeploymentConfig) {
	s.deployment = fn.Some(dc)
	s.attachments.SetProfile(fn.Some(dc.AttachmentProfile()))
}

func (s *session) publishMessage(ev conversation.Event) {
	for _, listener := range s.messageListeners {
		listener(ev)
	}
}

func (s *session) emit(ev event.Event) {
	s.log.Debug("event %s", ev)
	for _, listener := range s.eventListeners {
		listener(ev)
	}
}

func (s *session) emitError(err error) {
	var ce *errcode.Error
	if errors.As(err, &ce) {
		s.emit(event.FromError(ce))
		return
	}
	s.emit(event.NewError(errcode.UnexpectedError, err.Error()))
}

func (s *session) send(frame any) error {
	if s.sock == nil {
		return errcode.New(errcode.WebsocketError, "socket is not open")
	}
	text, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	if !s.sock.Send(text) {
		return errcode.New(errcode.WebsocketError, "socket refused the frame")
	}
	s.log.Debug("sent %T", frame)
	return nil
}

func (s *session) openSocket() {
	s.gen++
	s.sock = s.factory(s.cfg.WebSocketURL())
	s.sock.Open(&socketListener{ref: s.ref, gen: s.gen, log: s.log})
}

// closeSocket closes the socket without waiting for its report.
func (s *session) closeSocket(code int, reason string) {
	if s.sock == nil {
		return
	}
	sock := s.sock
	s.discardSocket()
	sock.Close(code, reason)
}

// discardSocket forgets a socket that already failed.
func (s *session) discardSocket() {
	s.gen++
	s.sock = nil
}

func (s *session) connect(authenticated bool) error {
	if err := s.machine.CheckConnectable(); err != nil {
		return err
	}
	if _, err := s.machine.Transition(state.ConnectEvent{}); err != nil {
		return err
	}
	s.authenticated = authenticated
	s.openSocket()
	return nil
}

func (s *session) onOpen() {
	if _, err := s.machine.Transition(state.ConnectionOpenedEvent{}); err != nil {
		return
	}
	s.configure(false)
}

func (s *session) configure(startNew bool) {
	s.configuring = true
	s.startNew = startNew

	var frame any
	if s.authenticated {
		token := s.auth.Jwt()
		if token.IsNone() {
			s.terminate(errcode.AuthFailed, "no authenticated session")
			return
		}
		frame = protocol.NewConfigureAuthenticatedSessionRequest(s.token, s.cfg.DeploymentID, startNew, nil, token.UnsafeFromSome())
	} else {
		frame = protocol.NewConfigureSessionRequest(s.token, s.cfg.DeploymentID, startNew, nil)
	}
	if err := s.send(frame); err != nil {
		s.log.Warn("configure not sent: %v", err)
	}
}

// retryConfigure refreshes the authenticated JWT and configures again
// once the refresh reports back.
func (s *session) retryConfigure(ctx context.Context, code errcode.ErrorCode, message string) {
	if !s.cfg.AutoRefreshTokenWhenExpired || s.configureRetries >= consts.MaxConfigureRetries {
		s.terminate(code, message)
		return
	}
	s.configureRetries++
	s.log.Info("configure rejected with %s, refreshing token (attempt %d)", code, s.configureRetries)

	gen := s.gen
	go func() {
		err := s.auth.RefreshToken(ctx)
		s.post(refreshDoneMsg{gen: gen, err: err})
	}()
}

func (s *session) onRefreshed(m refreshDoneMsg) {
	if m.gen != s.gen || !s.configuring {
		return
	}
	if m.err != nil {
		var ce *errcode.Error
		if errors.As(m.err, &ce) {
			s.terminate(ce.Code, ce.Message)
			return
		}
		s.terminate(errcode.RefreshAuthTokenFailure, m.err.Error())
		return
	}
	s.configure(s.startNew)
}

func (s *session) onFailure(err error) {
	code, message := errcode.WebsocketError, err.Error()
	var ce *errcode.Error
	if errors.As(err, &ce) {
		code, message = ce.Code, ce.Message
	}
	s.log.Warn("socket failure: %s %s", code, message)
	s.lost(code, message)
}

// lost handles a connection that went away without a close we asked for.
func (s *session) lost(code errcode.ErrorCode, message string) {
	switch cur := s.machine.Current().(type) {
	case state.Idle, state.Closed, state.Error:
		return
	case state.Closing:
		s.discardSocket()
		if _, err := s.machine.Transition(state.ClosedEvent{Code: cur.Code, Reason: cur.Reason}); err == nil {
			s.cleanup()
		}
		return
	case state.Connected, state.Configured, state.ReadOnly, state.Reconnecting:
		if !code.IsSessionFatal() && s.reconnect.ShouldReconnect() {
			s.scheduleReconnect(code, message)
			return
		}
	}
	s.terminate(code, message)
}

func (s *session) scheduleReconnect(code errcode.ErrorCode, message string) {
	if _, err := s.machine.Transition(state.ReconnectEvent{}); err != nil {
		s.terminate(code, message)
		return
	}
	s.discardSocket()
	s.configuring = false
	s.attrs.OnSessionClosed()
	if s.jwt.Pending() > 0 {
		s.abandonHistory("connection lost")
	}
	s.jwt.Clear()

	if err := s.reconnect.Reconnect(func() { s.post(reconnectReadyMsg{}) }); err != nil {
		s.log.Warn("giving up: %v", err)
		s.terminate(code, message)
	}
}

func (s *session) onReconnectReady() {
	if !s.machine.IsReconnecting() {
		return
	}
	if _, err := s.machine.Transition(state.ConnectEvent{}); err != nil {
		return
	}
	s.openSocket()
}

func (s *session) onClosing(code int, reason string) {
	if _, ok := s.machine.Current().(state.Closing); ok {
		return
	}
	switch code {
	case consts.NormalClosureCode:
		_, _ = s.machine.Transition(state.ClosingEvent{Code: code, Reason: reason})
	case consts.ForbiddenCloseCode:
		s.terminate(errcode.WebsocketAccessDenied, reason)
	default:
		s.lost(errcode.WebsocketError, reason)
	}
}

func (s *session) onClosed(code int, reason string) {
	if _, ok := s.machine.Current().(state.Closing); !ok {
		s.lost(errcode.WebsocketError, reason)
		return
	}
	s.discardSocket()
	if _, err := s.machine.Transition(state.ClosedEvent{Code: code, Reason: reason}); err == nil {
		s.cleanup()
	}
}

// terminate moves the session to Error and drops everything it holds.
func (s *session) terminate(code errcode.ErrorCode, message string) {
	s.log.Error("session failed: %s %s", code, message)
	_, err := s.machine.Transition(state.ErrorEvent{Code: code, Message: message})
	s.emit(event.NewError(code, message))
	if err != nil {
		return
	}
	s.closeSocket(consts.NormalClosureCode, consts.NormalClosureReason)
	s.cleanup()
}

// disconnect closes the socket with a normal closure and cleans up. The
// session reaches Closed when the socket reports back.
func (s *session) disconnect() error {
	if err := s.machine.CheckActive(); err != nil {
		return err
	}
	if _, err := s.machine.Transition(state.ClosingEvent{Code: consts.NormalClosureCode, Reason: consts.NormalClosureReason}); err != nil {
		return err
	}
	s.cleanup()

	if s.sock == nil {
		_, err := s.machine.Transition(state.ClosedEvent{Code: consts.NormalClosureCode, Reason: consts.NormalClosureReason})
		return err
	}
	s.sock.Close(consts.NormalClosureCode, consts.NormalClosureReason)
	return nil
}

func (s *session) cleanup() {
	s.store.InvalidateConversationCache()
	s.attachments.ClearAll()
	s.reconnect.Clear()
	s.attrs.OnSessionClosed()
	s.jwt.Clear()
	s.abandonHistory("session closed")
	s.epoch++

	s.configuring = false
	s.configureRetries = 0
	s.startNewPending = false
	s.lastHealthCheck = time.Time{}
	s.lastTyping = time.Time{}
}

// rotateToken replaces the session token after the gateway dropped the
// session it belonged to.
func (s *session) rotateToken() {
	token := s.newID()
	if err := s.vault.Store(vault.KeyToken, token); err != nil {
		s.log.Warn("session token not stored: %v", err)
	}
	s.bindToken(token)
}
