package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/reconnect"
	"github.com/codefionn/webmessaging/internal/state"
	"github.com/codefionn/webmessaging/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t       *testing.T
	gw      *testutil.Gateway
	sockets *testutil.Sockets
	clock   *fakeClock
	client  *Client

	mu        sync.Mutex
	states    []state.ConnectionState
	events    []event.Event
	messages  []conversation.Event
	scheduled []func()
}

type setup struct {
	deployment *config.DeploymentConfig
	fetch      bool
	timeout    time.Duration
}

func newHarness(t *testing.T, st setup) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		gw:      testutil.NewGateway(t),
		sockets: &testutil.Sockets{},
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	cfg := h.gw.Configuration("dep-1")
	if st.timeout != 0 {
		cfg.ReconnectionTimeout = st.timeout
	}

	var ids atomic.Int64
	opts := []Option{
		WithSocketFactory(h.sockets.Factory()),
		WithNow(h.clock.Now),
		WithLogger(logger.Discard()),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }),
		WithReconnectOptions(
			reconnect.WithClock(h.clock),
			reconnect.WithScheduler(h.schedule),
			reconnect.WithRandomizationFactor(0),
		),
	}
	if !st.fetch {
		dc := st.deployment
		if dc == nil {
			dc = &config.DeploymentConfig{}
		}
		opts = append(opts, WithDeploymentConfig(dc))
	}

	client, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	h.client = client

	client.OnState(func(s state.ConnectionState) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	client.OnEvent(func(ev event.Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	})
	client.OnMessageEvent(func(ev conversation.Event) {
		h.mu.Lock()
		h.messages = append(h.messages, ev)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) schedule(_ time.Duration, f func()) func() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scheduled = append(h.scheduled, f)
	return func() bool { return true }
}

// fireReconnect runs the newest scheduled reconnect attempt.
func (h *harness) fireReconnect() {
	h.mu.Lock()
	require.NotEmpty(h.t, h.scheduled)
	f := h.scheduled[len(h.scheduled)-1]
	h.mu.Unlock()
	f()
}

func (h *harness) recordedStates() []state.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]state.ConnectionState(nil), h.states...)
}

func (h *harness) recordedEvents() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

func (h *harness) recordedMessages() []conversation.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]conversation.Event(nil), h.messages...)
}

func (h *harness) errorCodes() []errcode.ErrorCode {
	var codes []errcode.ErrorCode
	for _, ev := range h.recordedEvents() {
		if e, ok := ev.(event.Error); ok {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

// configured connects and answers the configure frame.
func (h *harness) configured(newSession bool) *testutil.Socket {
	h.t.Helper()
	require.NoError(h.t, h.client.Connect(context.Background()))
	sock := h.sockets.Last()
	require.NotNil(h.t, sock)
	sock.ServerOpen()
	sock.Respond(h.t, protocol.ClassSessionResponse, 200, protocol.SessionResponse{Connected: true, NewSession: newSession})
	require.IsType(h.t, state.Configured{}, h.client.CurrentState())
	return sock
}

func countAction(t *testing.T, sock *testutil.Socket, action string) int {
	n := 0
	for _, a := range sock.Actions(t) {
		if a == action {
			n++
		}
	}
	return n
}

func TestConnectConfiguresSession(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(true)

	assert.Contains(t, sock.URL, "deploymentId=dep-1")
	assert.Equal(t, []string{protocol.ActionConfigureSession}, sock.Actions(t))
	assert.Equal(t, []state.ConnectionState{
		state.Connecting{},
		state.Connected{},
		state.Configured{Connected: true, NewSession: true},
	}, h.recordedStates())
}

func TestSendMessageFrame(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(true)
	token := h.client.Token()

	require.NoError(t, h.client.SendMessage("Hello", nil))

	want := fmt.Sprintf(`{"token":%q,"message":{"text":"Hello","type":"Text"},"action":"onMessage"}`, token)
	assert.Equal(t, want, sock.LastSent())

	var inserted []conversation.MessageInserted
	for _, ev := range h.recordedMessages() {
		if mi, ok := ev.(conversation.MessageInserted); ok {
			inserted = append(inserted, mi)
		}
	}
	require.Len(t, inserted, 1)
	assert.Equal(t, conversation.Sending{}, inserted[0].Message.State)
}

func TestPreconditions(t *testing.T) {
	h := newHarness(t, setup{})

	tests := []struct {
		name string
		call func() error
	}{
		{"send message", func() error { return h.client.SendMessage("hi", nil) }},
		{"quick reply", func() error { return h.client.SendQuickReply(protocol.ButtonResponse{Text: "yes"}) }},
		{"attach", func() error { _, err := h.client.Attach([]byte("x"), "a.txt", nil); return err }},
		{"detach", func() error { return h.client.Detach("id") }},
		{"history", func() error { return h.client.FetchNextPage(context.Background()) }},
		{"health check", h.client.SendHealthCheck},
		{"typing", h.client.IndicateTyping},
		{"disconnect", h.client.Disconnect},
		{"start new chat", h.client.StartNewChat},
		{"clear", h.client.ClearConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.ErrorIs(t, err, state.ErrIllegalState)
			assert.Equal(t, state.Idle{}, h.client.CurrentState())
		})
	}

	h.configured(true)
	assert.ErrorIs(t, h.client.Connect(context.Background()), state.ErrIllegalState)
	assert.ErrorIs(t, h.client.StartNewChat(), state.ErrIllegalState)
}

func TestHealthCheckCooldown(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	require.NoError(t, h.client.SendHealthCheck())
	require.NoError(t, h.client.SendHealthCheck())
	assert.Equal(t, 1, countAction(t, sock, protocol.ActionEcho))

	h.clock.Advance(31 * time.Second)
	require.NoError(t, h.client.SendHealthCheck())
	assert.Equal(t, 2, countAction(t, sock, protocol.ActionEcho))

	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "echo-1",
		Type:      protocol.TypeText,
		Text:      "ping",
		Direction: protocol.DirectionInbound,
		Metadata:  map[string]string{"customMessageId": consts.HealthCheckID},
	})
	assert.Contains(t, h.recordedEvents(), event.Event(event.HealthChecked{}))
	assert.Empty(t, h.client.Conversation())
}

func TestTypingCooldown(t *testing.T) {
	dc := &config.DeploymentConfig{}
	dc.Messenger.Apps.Conversations.ShowUserTypingIndicator = true
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)

	require.NoError(t, h.client.IndicateTyping())
	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.client.IndicateTyping())
	assert.Equal(t, 1, countAction(t, sock, protocol.ActionTyping))

	h.clock.Advance(4 * time.Second)
	require.NoError(t, h.client.IndicateTyping())
	assert.Equal(t, 2, countAction(t, sock, protocol.ActionTyping))
	assert.Equal(t, fmt.Sprintf(`{"token":%q,"action":"typing"}`, h.client.Token()), sock.LastSent())
}

func TestTypingDisabledByDeployment(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	require.NoError(t, h.client.IndicateTyping())
	assert.Zero(t, countAction(t, sock, protocol.ActionTyping))
}

func TestFetchHistory(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	h.gw.SetJwt("jwt-1")
	h.gw.SetHistoryPage(1, protocol.MessageEntityList{
		Entities: []protocol.StructuredMessage{
			{ID: "m2", Type: protocol.TypeText, Text: "second", Direction: protocol.DirectionOutbound,
				Channel: &protocol.StructuredChannel{Time: "2024-05-01T11:00:02Z"}},
			{ID: "m1", Type: protocol.TypeText, Text: "first", Direction: protocol.DirectionInbound,
				Channel: &protocol.StructuredChannel{Time: "2024-05-01T11:00:01Z"}},
		},
		PageNumber: 1,
		PageSize:   25,
		Total:      2,
	})

	done := make(chan error, 1)
	go func() { done <- h.client.FetchNextPage(context.Background()) }()

	require.Eventually(t, func() bool {
		return countAction(t, sock, protocol.ActionGetJwt) == 1
	}, time.Second, 5*time.Millisecond)
	sock.Respond(t, protocol.ClassJwtResponse, 200, protocol.JwtResponse{
		Jwt: "jwt-1",
		Exp: h.clock.Now().Add(time.Hour).Unix(),
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("history fetch did not finish")
	}

	conv := h.client.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "first", conv[0].Text.UnwrapOr(""))
	assert.Equal(t, "second", conv[1].Text.UnwrapOr(""))
	assert.Equal(t, []int{1}, h.gw.HistoryQueries())

	// all history is loaded now: no HTTP call, an empty page is reported
	require.NoError(t, h.client.FetchNextPage(context.Background()))
	assert.Equal(t, []int{1}, h.gw.HistoryQueries())
	assert.Equal(t, 1, countAction(t, sock, protocol.ActionGetJwt))

	msgs := h.recordedMessages()
	last, ok := msgs[len(msgs)-1].(conversation.HistoryFetched)
	require.True(t, ok)
	assert.Empty(t, last.Messages)
	assert.True(t, last.StartOfConversation)
}

func TestHistoryFailureReported(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	h.gw.Fail("messages", 500)

	done := make(chan error, 1)
	go func() { done <- h.client.FetchNextPage(context.Background()) }()
	require.Eventually(t, func() bool {
		return countAction(t, sock, protocol.ActionGetJwt) == 1
	}, time.Second, 5*time.Millisecond)
	sock.Respond(t, protocol.ClassJwtResponse, 200, protocol.JwtResponse{Jwt: "jwt-1", Exp: h.clock.Now().Add(time.Hour).Unix()})

	err := <-done
	var ce *errcode.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errcode.HistoryFetchFailure, ce.Code)
	assert.Contains(t, h.errorCodes(), errcode.HistoryFetchFailure)
}

func TestReconnectAndExhaustion(t *testing.T) {
	h := newHarness(t, setup{timeout: 10 * time.Second})
	sock := h.configured(false)

	sock.Fail(errors.New("connection reset"))
	assert.Equal(t, state.Reconnecting{}, h.client.CurrentState())

	h.fireReconnect()
	require.Equal(t, 2, h.sockets.Count())
	second := h.sockets.Last()
	second.ServerOpen()
	assert.Equal(t, state.Reconnecting{}, h.client.CurrentState())
	second.Respond(t, protocol.ClassSessionResponse, 200, protocol.SessionResponse{Connected: true})
	assert.Equal(t, state.Configured{Connected: true, WasReconnecting: true}, h.client.CurrentState())

	second.Fail(errors.New("connection reset"))
	h.fireReconnect()
	require.Equal(t, 3, h.sockets.Count())

	h.clock.Advance(11 * time.Second)
	h.sockets.Last().Fail(errors.New("connection refused"))

	cur, ok := h.client.CurrentState().(state.Error)
	require.True(t, ok, "state is %s", h.client.CurrentState())
	assert.Equal(t, errcode.WebsocketError, cur.Code)
	assert.Contains(t, h.errorCodes(), errcode.WebsocketError)
}

func TestInitialFailureIsFatal(t *testing.T) {
	h := newHarness(t, setup{})
	require.NoError(t, h.client.Connect(context.Background()))

	h.sockets.Last().Fail(errcode.New(errcode.WebsocketAccessDenied, "handshake rejected"))
	assert.Equal(t, state.Error{Code: errcode.WebsocketAccessDenied, Message: "handshake rejected"}, h.client.CurrentState())

	// a failed session may connect again
	require.NoError(t, h.client.Connect(context.Background()))
	assert.Equal(t, 2, h.sockets.Count())
}

func TestAuthenticatedConfigureRetryBound(t *testing.T) {
	h := newHarness(t, setup{})
	h.gw.SetAuthCode("code-1", protocol.AuthJwt{Jwt: "auth-jwt", RefreshToken: "refresh-1"})
	h.gw.SetRefreshedJwt("auth-jwt-2")

	require.NoError(t, h.client.Authorize(context.Background(), "code-1", "https://app.example/cb", "verifier"))
	assert.Contains(t, h.recordedEvents(), event.Event(event.Authorized{}))

	require.NoError(t, h.client.ConnectAuthenticatedSession(context.Background()))
	sock := h.sockets.Last()
	sock.ServerOpen()
	require.Equal(t, 1, countAction(t, sock, protocol.ActionConfigureAuthenticatedSession))
	assert.Contains(t, sock.LastSent(), `"data":{"code":"auth-jwt"}`)

	for attempt := 1; attempt <= 3; attempt++ {
		sock.Respond(t, protocol.ClassSessionResponse, 401, "Unauthorized")
		require.Eventually(t, func() bool {
			return countAction(t, sock, protocol.ActionConfigureAuthenticatedSession) == attempt+1
		}, 5*time.Second, 5*time.Millisecond)
	}
	assert.Contains(t, sock.LastSent(), `"data":{"code":"auth-jwt-2"}`)

	sock.Respond(t, protocol.ClassSessionResponse, 401, "Unauthorized")
	assert.Equal(t, state.Error{Code: errcode.FromHTTPStatus(401), Message: "Unauthorized"}, h.client.CurrentState())
	assert.Equal(t, 4, countAction(t, sock, protocol.ActionConfigureAuthenticatedSession))
}

func TestConnectAuthenticatedRequiresAuthorization(t *testing.T) {
	h := newHarness(t, setup{})

	err := h.client.ConnectAuthenticatedSession(context.Background())
	var ce *errcode.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errcode.AuthFailed, ce.Code)
	assert.Zero(t, h.sockets.Count())
}

func TestMessageScopedErrorKeepsSession(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	require.NoError(t, h.client.SendMessage(strings.Repeat("x", 10), nil))
	sock.Respond(t, protocol.ClassString, 4011, "Message exceeds the maximum length")

	assert.IsType(t, state.Configured{}, h.client.CurrentState())
	conv := h.client.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, conversation.Error{Code: errcode.MessageTooLong, Message: "Message exceeds the maximum length"}, conv[0].State)
	assert.Contains(t, h.errorCodes(), errcode.MessageTooLong)
}

func TestTooManyRequests(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	require.NoError(t, h.client.SendMessage("hi", nil))
	sock.Respond(t, protocol.ClassTooManyRequests, 429, protocol.TooManyRequestsErrorMessage{
		RetryAfter:   3,
		ErrorCode:    4029,
		ErrorMessage: "Message rate too high",
	})

	assert.IsType(t, state.Configured{}, h.client.CurrentState())
	assert.Contains(t, h.errorCodes(), errcode.RequestRateTooHigh)
}

func TestSessionExpired(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	require.NoError(t, h.client.SendMessage("hi", nil))

	sock.Respond(t, protocol.ClassSessionExpiredEvent, 200, map[string]any{})

	assert.Equal(t, state.Error{Code: errcode.SessionHasExpired, Message: "session has expired"}, h.client.CurrentState())
	assert.Empty(t, h.client.Conversation())
	closed, _, _ := sock.CloseRequest()
	assert.True(t, closed)
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	require.NoError(t, h.client.SendMessage("hi", nil))

	require.NoError(t, h.client.Disconnect())
	assert.Equal(t, state.Closing{Code: 1000, Reason: "The user has closed the connection."}, h.client.CurrentState())
	closed, code, _ := sock.CloseRequest()
	assert.True(t, closed)
	assert.Equal(t, 1000, code)
	assert.Empty(t, h.client.Conversation())

	sock.FinishClose()
	assert.Equal(t, state.Closed{Code: 1000, Reason: "The user has closed the connection."}, h.client.CurrentState())
	assert.ErrorIs(t, h.client.Disconnect(), state.ErrIllegalState)
}

func TestRemoteClose(t *testing.T) {
	tests := []struct {
		name string
		code int
		want state.ConnectionState
	}{
		{name: "normal", code: 1000, want: state.Closed{Code: 1000, Reason: "bye"}},
		{name: "forbidden", code: 1008, want: state.Error{Code: errcode.WebsocketAccessDenied, Message: "bye"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, setup{})
			sock := h.configured(false)
			sock.ServerClose(tt.code, "bye")
			assert.Equal(t, tt.want, h.client.CurrentState())
		})
	}
}

func TestInboundEchoCompletesMessage(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	require.NoError(t, h.client.SendMessage("Hello", nil))

	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "srv-1",
		Type:      protocol.TypeText,
		Text:      "Hello",
		Direction: protocol.DirectionInbound,
		Channel:   &protocol.StructuredChannel{Time: "2024-05-01T12:00:00Z"},
	})
	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "srv-2",
		Type:      protocol.TypeText,
		Text:      "Hi, how can I help?",
		Direction: protocol.DirectionOutbound,
		Channel:   &protocol.StructuredChannel{Time: "2024-05-01T12:00:01Z"},
	})

	conv := h.client.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "srv-1", conv[0].ID)
	assert.Equal(t, conversation.Sent{}, conv[0].State)
	assert.Equal(t, conversation.Outbound, conv[1].Direction)
}

func TestStructuredEvents(t *testing.T) {
	dc := &config.DeploymentConfig{}
	dc.Messenger.Apps.Conversations.ConversationDisconnect = config.ConversationDisconnect{Enabled: true, Type: config.DisconnectReadOnly}
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)

	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "ev-1",
		Type:      protocol.TypeEvent,
		Direction: protocol.DirectionOutbound,
		Events: []protocol.StructuredEvent{
			{EventType: protocol.EventTypeTyping, Typing: &protocol.TypingEvent{Type: protocol.TypingOn, Duration: 2000}},
		},
	})
	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "ev-2",
		Type:      protocol.TypeEvent,
		Direction: protocol.DirectionOutbound,
		Events: []protocol.StructuredEvent{
			{EventType: protocol.EventTypePresence, Presence: &protocol.PresenceEvent{Type: protocol.PresenceDisconnect}},
		},
	})

	assert.Equal(t, []event.Event{
		event.AgentTyping{Duration: 2 * time.Second},
		event.ConversationDisconnect{},
	}, h.recordedEvents())
	assert.Equal(t, state.ReadOnly{}, h.client.CurrentState())
	assert.Empty(t, h.client.Conversation())
	assert.ErrorIs(t, h.client.SendMessage("still there?", nil), state.ErrIllegalState)

	require.NoError(t, h.client.StartNewChat())
	assert.Equal(t, protocol.ActionCloseSession, sock.Actions(t)[len(sock.Actions(t))-1])

	sock.Respond(t, protocol.ClassConnectionClosedEvent, 200, map[string]any{})
	assert.Contains(t, sock.LastSent(), `"startNew":true`)
	assert.Equal(t, protocol.ActionConfigureSession, sock.Actions(t)[len(sock.Actions(t))-1])

	sock.Respond(t, protocol.ClassSessionResponse, 200, protocol.SessionResponse{Connected: true, NewSession: true})
	assert.Equal(t, state.Configured{Connected: true, NewSession: true}, h.client.CurrentState())
}

func TestAutostartFromFetchedDeployment(t *testing.T) {
	h := newHarness(t, setup{fetch: true})
	var dc config.DeploymentConfig
	dc.Messenger.Apps.Conversations.AutoStart.Enabled = true
	h.gw.SetDeployment(dc)

	sock := h.configured(true)
	assert.Equal(t, []string{protocol.ActionConfigureSession, protocol.ActionOnMessage}, sock.Actions(t))
	assert.Contains(t, sock.LastSent(), `"presence":{"type":"Join"}`)

	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "join-1",
		Type:      protocol.TypeEvent,
		Direction: protocol.DirectionInbound,
		Events: []protocol.StructuredEvent{
			{EventType: protocol.EventTypePresence, Presence: &protocol.PresenceEvent{Type: protocol.PresenceJoin}},
		},
	})
	assert.Contains(t, h.recordedEvents(), event.Event(event.ConversationAutostart{}))
}

func TestDeploymentFetchFailure(t *testing.T) {
	h := newHarness(t, setup{fetch: true})
	h.gw.Fail("config.json", 404)

	err := h.client.Connect(context.Background())
	var ce *errcode.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errcode.FromHTTPStatus(404), ce.Code)
	assert.Equal(t, state.Idle{}, h.client.CurrentState())
}

func TestAttachUploadAndSend(t *testing.T) {
	enabled := true
	dc := &config.DeploymentConfig{}
	dc.Messenger.FileUpload = config.FileUpload{
		EnableAttachments: &enabled,
		Modes:             []config.UploadMode{{FileTypes: []string{"text/plain"}, MaxFileSizeKB: 100}},
	}
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)

	var progress atomic.Int64
	id, err := h.client.Attach([]byte("hello world"), "notes.txt", func(p float64) { progress.Store(int64(p)) })
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionOnAttachment, sock.Actions(t)[len(sock.Actions(t))-1])

	sock.Respond(t, protocol.ClassPresignedURLResponse, 200, protocol.PresignedURLResponse{
		AttachmentID: id,
		URL:          h.gw.UploadURL(id),
		Headers:      map[string]string{"x-amz-tagging": "abc"},
	})
	require.Eventually(t, func() bool {
		_, _, ok := h.gw.Uploaded(id)
		return ok
	}, 5*time.Second, 5*time.Millisecond)
	data, headers, _ := h.gw.Uploaded(id)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "abc", headers.Get("x-amz-tagging"))

	sock.Respond(t, protocol.ClassUploadSuccessEvent, 200, protocol.UploadSuccessEvent{
		AttachmentID: id,
		DownloadURL:  "https://cdn.example/notes.txt",
	})

	require.NoError(t, h.client.SendMessage("see attached", nil))
	assert.Contains(t, sock.LastSent(), fmt.Sprintf(`{"contentType":"Attachment","attachment":{"id":%q}}`, id))

	var states []string
	for _, ev := range h.recordedMessages() {
		if au, ok := ev.(conversation.AttachmentUpdated); ok {
			states = append(states, au.Attachment.State.String())
		}
	}
	assert.Equal(t, []string{"Presigning", "Uploading", "Uploaded(https://cdn.example/notes.txt)", "Sending"}, states)
}

func TestAttachRejectedByProfile(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	_, err := h.client.Attach([]byte("MZ"), "setup.exe", nil)
	var ce *errcode.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errcode.FeatureUnavailable, ce.Code)
	assert.Zero(t, countAction(t, sock, protocol.ActionOnAttachment))
}

func TestAttachmentScopedErrors(t *testing.T) {
	enabled := true
	dc := &config.DeploymentConfig{}
	dc.Messenger.FileUpload = config.FileUpload{EnableAttachments: &enabled, Modes: []config.UploadMode{{MaxFileSizeKB: 10}}}
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)

	id, err := h.client.Attach([]byte("data"), "a.txt", nil)
	require.NoError(t, err)
	sock.Respond(t, protocol.ClassString, 4001, "File type not supported")

	msgs := h.recordedMessages()
	last, ok := msgs[len(msgs)-1].(conversation.AttachmentUpdated)
	require.True(t, ok)
	assert.Equal(t, id, last.Attachment.ID)
	assert.Equal(t, attachment.Error{Code: errcode.FileTypeInvalid, Message: "File type not supported"}, last.Attachment.State)
	assert.Contains(t, h.errorCodes(), errcode.FileTypeInvalid)

	require.NoError(t, h.client.SendMessage("hi", nil))
	sock.Respond(t, protocol.ClassString, 4010, "Attachment not uploaded")
	conv := h.client.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, conversation.Error{Code: errcode.AttachmentNotSuccessfullyUploaded, Message: "Attachment not uploaded"}, conv[0].State)
	assert.IsType(t, state.Configured{}, h.client.CurrentState())
}

func TestUnrelatedInboundKeepsPendingMessage(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)
	require.NoError(t, h.client.SendMessage("Hello", nil))

	sock.Respond(t, protocol.ClassStructuredMessage, 200, protocol.StructuredMessage{
		ID:        "other-device-1",
		Type:      protocol.TypeText,
		Text:      "from web",
		Direction: protocol.DirectionInbound,
	})

	conv := h.client.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "Hello", conv[0].Text.UnwrapOr(""))
	assert.Equal(t, conversation.Sending{}, conv[0].State)
	assert.Equal(t, "other-device-1", conv[1].ID)
}

func TestDetachUploaded(t *testing.T) {
	enabled := true
	dc := &config.DeploymentConfig{}
	dc.Messenger.FileUpload = config.FileUpload{EnableAttachments: &enabled, Modes: []config.UploadMode{{MaxFileSizeKB: 10}}}
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)

	id, err := h.client.Attach([]byte("data"), "a.txt", nil)
	require.NoError(t, err)
	sock.Respond(t, protocol.ClassUploadSuccessEvent, 200, protocol.UploadSuccessEvent{AttachmentID: id, DownloadURL: "https://cdn.example/a.txt"})

	require.NoError(t, h.client.Detach(id))
	assert.Equal(t, protocol.ActionDeleteAttachment, sock.Actions(t)[len(sock.Actions(t))-1])

	sock.Respond(t, protocol.ClassAttachmentDeletedResponse, 200, protocol.AttachmentDeletedResponse{AttachmentID: id})
	msgs := h.recordedMessages()
	last, ok := msgs[len(msgs)-1].(conversation.AttachmentUpdated)
	require.True(t, ok)
	assert.Equal(t, attachment.Detached{}, last.Attachment.State)
}

func TestClearConversation(t *testing.T) {
	dc := &config.DeploymentConfig{}
	dc.Messenger.Apps.Conversations.ConversationClear.Enabled = true
	h := newHarness(t, setup{deployment: dc})
	sock := h.configured(false)
	before := h.client.Token()

	require.NoError(t, h.client.ClearConversation())
	assert.Contains(t, sock.LastSent(), `"presence":{"type":"Clear"}`)

	sock.Respond(t, protocol.ClassSessionClearedEvent, 200, map[string]any{})
	assert.Contains(t, h.recordedEvents(), event.Event(event.ConversationCleared{}))
	assert.IsType(t, state.Closing{}, h.client.CurrentState())
	assert.NotEqual(t, before, h.client.Token())
}

func TestClearConversationDisabled(t *testing.T) {
	h := newHarness(t, setup{})
	h.configured(false)

	err := h.client.ClearConversation()
	var ce *errcode.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errcode.ClearConversationFailure, ce.Code)
}

func TestUndecodableFramesAreDropped(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	sock.Deliver("not json")
	sock.Deliver(`{"type":"response","class":"SomethingNew","code":200,"body":{}}`)
	sock.Deliver(`{"type":"response","class":"SessionResponse","code":200,"body":null}`)

	assert.IsType(t, state.Configured{}, h.client.CurrentState())
	assert.Empty(t, h.errorCodes())
}

func TestLogoutEventDisconnects(t *testing.T) {
	h := newHarness(t, setup{})
	sock := h.configured(false)

	sock.Respond(t, protocol.ClassLogoutEvent, 200, map[string]any{})
	assert.Contains(t, h.recordedEvents(), event.Event(event.Logout{}))
	assert.IsType(t, state.Closing{}, h.client.CurrentState())
}
