package testutil

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/transport"
)

// Socket is a transport.Socket that records frames. Tests drive the server
// side with its methods; it never calls the listener from Open, Send or
// Close so it is safe to use from inside a serial event context.
type Socket struct {
	URL string

	mu          sync.Mutex
	listener    transport.Listener
	opened      bool
	sent        []string
	closed      bool
	closeCode   int
	closeReason string
	refuseSend  bool
}

// Sockets is a transport.Factory that keeps every socket it created.
type Sockets struct {
	mu      sync.Mutex
	created []*Socket
}

// Factory returns the transport.Factory.
func (s *Sockets) Factory() transport.Factory {
	return func(url string) transport.Socket {
		sock := &Socket{URL: url}
		s.mu.Lock()
		s.created = append(s.created, sock)
		s.mu.Unlock()
		return sock
	}
}

// Count is the number of sockets created.
func (s *Sockets) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

// Last returns the newest socket or nil.
func (s *Sockets) Last() *Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.created) == 0 {
		return nil
	}
	return s.created[len(s.created)-1]
}

func (s *Socket) Open(l transport.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
	s.opened = true
}

func (s *Socket) Send(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuseSend || s.closed {
		return false
	}
	s.sent = append(s.sent, text)
	return true
}

func (s *Socket) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
}

// Opened reports whether Open was called.
func (s *Socket) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// RefuseSend makes Send return false.
func (s *Socket) RefuseSend(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseSend = refuse
}

// Sent returns the frames sent so far.
func (s *Socket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// LastSent returns the newest frame or "".
func (s *Socket) LastSent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

// Actions returns the action field of every sent frame.
func (s *Socket) Actions(t testing.TB) []string {
	t.Helper()
	var actions []string
	for _, frame := range s.Sent() {
		var f struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal([]byte(frame), &f); err != nil {
			t.Fatalf("sent frame is not JSON: %v", err)
		}
		actions = append(actions, f.Action)
	}
	return actions
}

// CloseRequest returns the code and reason passed to Close.
func (s *Socket) CloseRequest() (closed bool, code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeCode, s.closeReason
}

func (s *Socket) current() transport.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// ServerOpen reports the connection as open.
func (s *Socket) ServerOpen() {
	s.current().OnOpen()
}

// Deliver pushes a raw frame to the listener.
func (s *Socket) Deliver(frame string) {
	s.current().OnMessage(frame)
}

// Respond encodes body in a response envelope and delivers it.
func (s *Socket) Respond(t testing.TB, class string, code int, body any) {
	t.Helper()
	typ := "response"
	if class == protocol.ClassStructuredMessage {
		typ = "message"
	}
	frame, err := protocol.EncodeEnvelope(typ, class, code, body)
	if err != nil {
		t.Fatalf("encode %s: %v", class, err)
	}
	s.Deliver(frame)
}

// Fail reports a transport failure.
func (s *Socket) Fail(err error) {
	s.current().OnFailure(err)
}

// ServerClose runs a close handshake started by the server.
func (s *Socket) ServerClose(code int, reason string) {
	l := s.current()
	l.OnClosing(code, reason)
	l.OnClosed(code, reason)
}

// FinishClose completes a close started with Close.
func (s *Socket) FinishClose() {
	_, code, reason := s.CloseRequest()
	s.current().OnClosed(code, reason)
}
