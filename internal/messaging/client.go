// Package messaging runs a web messaging session: it owns the socket, routes
// gateway frames to the conversation, attachment, attribute and JWT
// components and exposes the public operations of the client.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/webmessaging/internal/actor"
	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/attributes"
	"github.com/codefionn/webmessaging/internal/auth"
	"github.com/codefionn/webmessaging/internal/config"
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
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

type options struct {
	factory    transport.Factory
	rest       *rest.Client
	vault      vault.Vault
	now        func() time.Time
	newID      func() string
	log        *logger.Logger
	reconnect  []reconnect.Option
	deployment *config.DeploymentConfig
}

// Option configures a Client.
type Option func(*options)

// WithSocketFactory replaces the gorilla websocket transport.
func WithSocketFactory(f transport.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithRESTClient replaces the REST client built from the configuration.
func WithRESTClient(c *rest.Client) Option {
	return func(o *options) {
		o.rest = c
	}
}

// WithVault sets where the session token and auth secrets are kept. The
// default is an in-memory vault.
func WithVault(v vault.Vault) Option {
	return func(o *options) {
		o.vault = v
	}
}

// WithNow replaces the clock used for the health check and typing cooldowns.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator replaces uuid generation for message, attachment and
// session token ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		o.newID = gen
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithReconnectOptions tunes the reconnection policy.
func WithReconnectOptions(opts ...reconnect.Option) Option {
	return func(o *options) {
		o.reconnect = append(o.reconnect, opts...)
	}
}

// WithDeploymentConfig skips fetching the deployment configuration.
func WithDeploymentConfig(dc *config.DeploymentConfig) Option {
	return func(o *options) {
		o.deployment = dc
	}
}

// Client is a web messaging client. All methods are safe for concurrent
// use; they are serialised with socket events and upload results.
//
// Listeners run inside the client's event context and must not call back
// into the Client synchronously.
type Client struct {
	cfg  *config.Configuration
	ref  *actor.Ref
	s    *session
	rest *rest.Client
	auth *auth.Handler
	log  *logger.Logger
}

// NewClient validates cfg and builds an idle client.
func NewClient(cfg *config.Configuration, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.Global(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.WithPrefix("messaging")
	if o.factory == nil {
		o.factory = transport.NewFactory(transport.WithLogger(o.log))
	}
	if o.rest == nil {
		o.rest = rest.NewClient(cfg, rest.WithLogger(o.log))
	}
	if o.vault == nil {
		o.vault = vault.NewMemory()
	}

	s := &session{
		cfg:        cfg,
		factory:    o.factory,
		rest:       o.rest,
		auth:       auth.NewHandler(o.rest, o.vault, o.log),
		vault:      o.vault,
		now:        o.now,
		newID:      o.newID,
		log:        log,
		deployment: fn.None[*config.DeploymentConfig](),
		storeOpts:  []conversation.Option{conversation.WithIDGenerator(o.newID)},
		machine:    state.NewMachine(state.WithLogger(o.log)),
	}
	s.attrs = attributes.NewQueue(func(e *errcode.Error) { s.emit(event.FromError(e)) }, o.log)
	s.jwt = jwt.NewCache(func() error { return s.send(protocol.NewJwtRequest(s.token)) }, o.now, o.log)
	s.reconnect = reconnect.NewPolicy(cfg.ReconnectionTimeout,
		append([]reconnect.Option{reconnect.WithLogger(o.log)}, o.reconnect...)...)

	token, ok := o.vault.Fetch(vault.KeyToken)
	if !ok || token == "" {
		token = o.newID()
		if err := o.vault.Store(vault.KeyToken, token); err != nil {
			log.Warn("session token not stored: %v", err)
		}
	}
	s.bindToken(token)
	if o.deployment != nil {
		s.setDeployment(o.deployment)
	}

	s.ref = actor.NewRef("messaging", s, 0, actor.WithSequentialProcessing(), actor.WithLogger(o.log))
	if err := s.ref.Start(context.Background()); err != nil {
		return nil, err
	}

	return &Client{
		cfg:  cfg,
		ref:  s.ref,
		s:    s,
		rest: o.rest,
		auth: s.auth,
		log:  log,
	}, nil
}

// call runs fn inside the event context and returns its error.
func (c *Client) call(name string, fn func(ctx context.Context) error) error {
	return c.ref.Send(callMsg{name: name, fn: fn})
}

// Token returns the session token.
func (c *Client) Token() string {
	var token string
	_ = c.call("token", func(context.Context) error {
		token = c.s.token
		return nil
	})
	return token
}

// OnState registers a listener for every new connection state.
func (c *Client) OnState(listener func(state.ConnectionState)) {
	_ = c.call("onState", func(context.Context) error {
		c.s.machine.OnState(listener)
		return nil
	})
}

// OnStateChange registers a listener for old/new state pairs.
func (c *Client) OnStateChange(listener func(state.StateChange)) {
	_ = c.call("onStateChange", func(context.Context) error {
		c.s.machine.OnStateChange(listener)
		return nil
	})
}

// OnMessageEvent registers a listener for conversation changes.
func (c *Client) OnMessageEvent(listener func(conversation.Event)) {
	_ = c.call("onMessageEvent", func(context.Context) error {
		c.s.messageListeners = append(c.s.messageListeners, listener)
		return nil
	})
}

// OnEvent registers a listener for session events and asynchronous errors.
func (c *Client) OnEvent(listener func(event.Event)) {
	_ = c.call("onEvent", func(context.Context) error {
		c.s.eventListeners = append(c.s.eventListeners, listener)
		return nil
	})
}

// Connect opens an anonymous session. It fails with an illegal state error
// unless the client is Idle, Closed or Error.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// ConnectAuthenticatedSession opens a session bound to the user signed in
// with Authorize. A stored refresh token is used when no JWT is held.
func (c *Client) ConnectAuthenticatedSession(ctx context.Context) error {
	if err := c.call("checkConnectable", func(context.Context) error {
		return c.s.machine.CheckConnectable()
	}); err != nil {
		return err
	}
	if !c.auth.IsAuthorized() {
		if !c.cfg.AutoRefreshTokenWhenExpired || !c.auth.WasAuthenticated() {
			return errcode.New(errcode.AuthFailed, "no authenticated session, authorize first")
		}
		if err := c.auth.RefreshToken(ctx); err != nil {
			c.emitError(err)
			return err
		}
	}
	return c.connect(ctx, true)
}

func (c *Client) connect(ctx context.Context, authenticated bool) error {
	loaded := false
	if err := c.call("checkConnectable", func(context.Context) error {
		loaded = c.s.deployment.IsSome()
		return c.s.machine.CheckConnectable()
	}); err != nil {
		return err
	}

	if !loaded {
		dc, err := c.rest.FetchDeploymentConfig(ctx)
		if err != nil {
			return fmt.Errorf("fetch deployment config: %w", err)
		}
		if err := c.call("setDeployment", func(context.Context) error {
			c.s.setDeployment(dc)
			return nil
		}); err != nil {
			return err
		}
	}

	return c.call("connect", func(context.Context) error {
		return c.s.connect(authenticated)
	})
}

// SendMessage sends text with optional custom attributes and every
// uploaded attachment. It requires a Configured session.
func (c *Client) SendMessage(text string, customAttributes map[string]string) error {
	return c.call("sendMessage", func(context.Context) error {
		return c.s.sendMessage(text, customAttributes)
	})
}

// SendQuickReply answers a quick reply offered by the agent.
func (c *Client) SendQuickReply(button protocol.ButtonResponse) error {
	return c.call("sendQuickReply", func(context.Context) error {
		return c.s.sendQuickReply(button)
	})
}

// Attach validates and starts uploading a file. The returned id tracks the
// attachment in AttachmentUpdated events.
func (c *Client) Attach(data []byte, fileName string, onProgress attachment.ProgressFunc) (string, error) {
	var id string
	err := c.call("attach", func(context.Context) error {
		var err error
		id, err = c.s.attach(data, fileName, onProgress)
		return err
	})
	return id, err
}

// Detach removes an attachment that was not sent yet.
func (c *Client) Detach(id string) error {
	return c.call("detach", func(context.Context) error {
		return c.s.detach(id)
	})
}

// FetchNextPage loads the next page of history and returns once it was
// merged into the conversation. ctx only bounds the wait.
func (c *Client) FetchNextPage(ctx context.Context) error {
	done := make(chan error, 1)
	if err := c.call("fetchNextPage", func(actx context.Context) error {
		return c.s.fetchNextPage(actx, done)
	}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendHealthCheck sends an echo frame answered by a HealthChecked event.
// Calls within the cooldown are dropped.
func (c *Client) SendHealthCheck() error {
	return c.call("sendHealthCheck", func(context.Context) error {
		return c.s.sendHealthCheck()
	})
}

// IndicateTyping tells the agent the user is typing. Calls within the
// cooldown are dropped.
func (c *Client) IndicateTyping() error {
	return c.call("indicateTyping", func(context.Context) error {
		return c.s.indicateTyping()
	})
}

// Disconnect closes the session with a normal closure.
func (c *Client) Disconnect() error {
	return c.call("disconnect", func(context.Context) error {
		return c.s.disconnect()
	})
}

// StartNewChat leaves a read-only conversation and configures a new one on
// the same connection.
func (c *Client) StartNewChat() error {
	return c.call("startNewChat", func(context.Context) error {
		return c.s.startNewChat()
	})
}

// ClearConversation asks the gateway to drop the conversation. Completion
// is reported with a ConversationCleared event.
func (c *Client) ClearConversation() error {
	return c.call("clearConversation", func(context.Context) error {
		return c.s.clearConversation()
	})
}

// Authorize exchanges an OAuth authorization code for a JWT.
func (c *Client) Authorize(ctx context.Context, code, redirectURI, codeVerifier string) error {
	if err := c.auth.Authorize(ctx, code, redirectURI, codeVerifier); err != nil {
		c.emitError(err)
		return err
	}
	return c.call("authorized", func(context.Context) error {
		c.s.emit(event.Authorized{})
		return nil
	})
}

// RefreshAuthToken replaces the JWT using the stored refresh token.
func (c *Client) RefreshAuthToken(ctx context.Context) error {
	if err := c.auth.RefreshToken(ctx); err != nil {
		c.emitError(err)
		return err
	}
	return nil
}

// Logout revokes the JWT. A connected session ends once the gateway
// confirms; an idle client reports Logout at once.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.auth.Logout(ctx); err != nil {
		c.emitError(err)
		return err
	}
	return c.call("logout", func(context.Context) error {
		if c.s.machine.IsInactive() {
			c.s.auth.Clear()
			c.s.emit(event.Logout{})
		}
		return nil
	})
}

// Conversation returns the messages known so far, oldest first.
func (c *Client) Conversation() []conversation.Message {
	var msgs []conversation.Message
	_ = c.call("conversation", func(context.Context) error {
		msgs = c.s.store.Conversation()
		return nil
	})
	return msgs
}

// CurrentState returns the connection state.
func (c *Client) CurrentState() state.ConnectionState {
	var cur state.ConnectionState = state.Closed{}
	_ = c.call("currentState", func(context.Context) error {
		cur = c.s.machine.Current()
		return nil
	})
	return cur
}

// Close disconnects an active session and stops the client. The client
// cannot be used afterwards.
func (c *Client) Close() error {
	_ = c.call("close", func(context.Context) error {
		if c.s.machine.CheckActive() == nil {
			return c.s.disconnect()
		}
		return nil
	})
	return c.ref.Stop(context.Background())
}

func (c *Client) emitError(err error) {
	_ = c.call("emitError", func(context.Context) error {
		c.s.emitError(err)
		return nil
	})
}
