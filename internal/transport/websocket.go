package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/gorilla/websocket"
	"golang.org/x/net/http/httpproxy"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

// Option configures a WebSocket.
type Option func(*WebSocket)

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(ws *WebSocket) {
		for k, vs := range h {
			for _, v := range vs {
				ws.header.Add(k, v)
			}
		}
	}
}

// WithDialer replaces the dialer, mostly for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(ws *WebSocket) {
		ws.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(ws *WebSocket) {
		ws.log = l.WithPrefix("socket")
	}
}

// NewFactory returns a Factory producing gorilla sockets with opts.
func NewFactory(opts ...Option) Factory {
	return func(url string) Socket {
		return NewWebSocket(url, opts...)
	}
}

// WebSocket is a Socket backed by gorilla/websocket.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	log    *logger.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	listener    Listener
	send        chan string
	done        chan struct{}
	closing     bool
	closeCode   int
	closeReason string
	finished    bool
}

// NewWebSocket creates an unopened socket.
func NewWebSocket(rawURL string, opts ...Option) *WebSocket {
	proxy := httpproxy.FromEnvironment().ProxyFunc()
	ws := &WebSocket{
		url: rawURL,
		dialer: &websocket.Dialer{
			Proxy: func(req *http.Request) (*url.URL, error) {
				return proxy(req.URL)
			},
			HandshakeTimeout: consts.DialTimeout,
		},
		header: http.Header{},
		log:    logger.Global().WithPrefix("socket"),
		send:   make(chan string, sendBuffer),
		done:   make(chan struct{}),
	}
	ws.header.Set("User-Agent", consts.SDKName+"/"+consts.SDKVersion)
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// Open dials in the background.
func (ws *WebSocket) Open(l Listener) {
	ws.mu.Lock()
	ws.listener = l
	ws.mu.Unlock()

	go ws.dial()
}

func (ws *WebSocket) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), consts.DialTimeout)
	defer cancel()

	conn, resp, err := ws.dialer.DialContext(ctx, ws.url, ws.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		ws.log.Warn("dial failed: %v", err)
		ws.finish(func(l Listener) { l.OnFailure(dialError(resp, err)) })
		return
	}

	ws.mu.Lock()
	ws.conn = conn
	closing, code, reason := ws.closing, ws.closeCode, ws.closeReason
	ws.mu.Unlock()

	if closing {
		_ = conn.Close()
		ws.finish(func(l Listener) { l.OnClosed(code, reason) })
		return
	}

	ws.listener.OnOpen()
	go ws.writePump(conn)
	ws.readPump(conn)
}

func dialError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errcode.New(errcode.WebsocketAccessDenied, fmt.Sprintf("handshake rejected: %s", resp.Status))
		}
		return errcode.New(errcode.FromHTTPStatus(resp.StatusCode), err.Error())
	}
	return errcode.New(errcode.WebsocketError, err.Error())
}

func (ws *WebSocket) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(consts.MaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			ws.readFailed(err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ws.listener.OnMessage(string(message))
	}
}

func (ws *WebSocket) readFailed(err error) {
	ws.mu.Lock()
	closing, code, reason := ws.closing, ws.closeCode, ws.closeReason
	ws.mu.Unlock()

	if closing {
		ws.finish(func(l Listener) { l.OnClosed(code, reason) })
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ws.finish(func(l Listener) {
			l.OnClosing(ce.Code, ce.Text)
			l.OnClosed(ce.Code, ce.Text)
		})
		return
	}

	ws.log.Warn("read failed: %v", err)
	ws.finish(func(l Listener) { l.OnFailure(errcode.New(errcode.WebsocketError, err.Error())) })
}

func (ws *WebSocket) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ws.done:
			return
		case text := <-ws.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				ws.log.Warn("write failed: %v", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// finish reports the terminal event once and releases the connection.
func (ws *WebSocket) finish(report func(Listener)) {
	ws.mu.Lock()
	if ws.finished {
		ws.mu.Unlock()
		return
	}
	ws.finished = true
	conn := ws.conn
	l := ws.listener
	close(ws.done)
	ws.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if l != nil {
		report(l)
	}
}

// Send queues a text frame for the write pump.
func (ws *WebSocket) Send(text string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil || ws.closing || ws.finished {
		return false
	}
	select {
	case ws.send <- text:
		return true
	default:
		return false
	}
}

// Close sends a close frame and drops the connection if the peer does not
// answer within the write timeout.
func (ws *WebSocket) Close(code int, reason string) {
	ws.mu.Lock()
	if ws.closing || ws.finished {
		ws.mu.Unlock()
		return
	}
	ws.closing = true
	ws.closeCode = code
	ws.closeReason = reason
	conn := ws.conn
	ws.mu.Unlock()

	if conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		ws.log.Debug("close frame not sent: %v", err)
		_ = conn.Close()
		return
	}
	time.AfterFunc(writeWait, func() { _ = conn.Close() })
}
