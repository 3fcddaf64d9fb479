// Package transport carries text frames between the session and the gateway.
package transport

// Listener receives socket events. Calls for one socket never overlap and
// arrive in order.
type Listener interface {
	OnOpen()
	OnMessage(text string)
	// OnFailure reports a socket that ended without a close handshake.
	OnFailure(err error)
	// OnClosing reports a close handshake started by the remote end.
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
}

// Socket is one WebSocket connection attempt.
type Socket interface {
	// Open connects in the background and reports through l.
	Open(l Listener)
	// Send queues a text frame; false when the socket cannot take it.
	Send(text string) bool
	// Close starts a close handshake.
	Close(code int, reason string)
}

// Factory creates an unopened socket for url.
type Factory func(url string) Socket
