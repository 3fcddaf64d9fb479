// Package attributes queues conversation-scoped custom attributes until they
// ride along with the next outgoing message or autostart event.
package attributes

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// State is the lifecycle of the queued attributes.
type State int

const (
	Pending State = iota
	Sending
	Sent
	Error
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Sending:
		return "Sending"
	case Sent:
		return "Sent"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Queue holds one set of custom attributes. It is driven from the session's
// event context and is not safe for concurrent use.
type Queue struct {
	state    State
	attrs    map[string]string
	maxBytes fn.Option[int]
	onError  func(*errcode.Error)
	log      *logger.Logger
}

// NewQueue returns an empty queue in Pending. onError receives rejected adds
// and may be nil.
func NewQueue(onError func(*errcode.Error), log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Global()
	}
	return &Queue{
		state:    Pending,
		attrs:    map[string]string{},
		maxBytes: fn.None[int](),
		onError:  onError,
		log:      log.WithPrefix("attributes"),
	}
}

// State returns the lifecycle state.
func (q *Queue) State() State {
	return q.state
}

// Get returns a copy of the current attributes regardless of state.
func (q *Queue) Get() map[string]string {
	return maps.Clone(q.attrs)
}

// GetForSend returns the attributes only while Pending; it never changes state.
func (q *Queue) GetForSend() map[string]string {
	if q.state != Pending {
		return map[string]string{}
	}
	return maps.Clone(q.attrs)
}

// SetMaxCustomDataBytes applies the limit announced by the gateway.
func (q *Queue) SetMaxCustomDataBytes(limit fn.Option[int]) {
	q.maxBytes = limit
}

// Add merges attrs and returns true when the stored attributes changed,
// which forces the queue back to Pending. Empty or identical input is a no-op.
// A merge that exceeds the size limit is rejected and reported.
func (q *Queue) Add(attrs map[string]string) bool {
	if len(attrs) == 0 {
		return false
	}

	merged := maps.Clone(q.attrs)
	maps.Copy(merged, attrs)
	if maps.Equal(merged, q.attrs) {
		return false
	}

	if limit := q.maxBytes.UnwrapOr(-1); limit >= 0 {
		if size := sizeOf(merged); size > limit {
			q.log.Warn("custom attributes rejected: %d bytes exceeds %d", size, limit)
			if q.onError != nil {
				q.onError(errcode.New(errcode.CustomAttributeSizeTooLarge,
					fmt.Sprintf("custom attributes of %d bytes exceed the limit of %d bytes", size, limit)))
			}
			return false
		}
	}

	q.attrs = merged
	q.state = Pending
	return true
}

// OnSending marks the attributes as attached to an in-flight request.
func (q *Queue) OnSending() {
	if q.state == Pending {
		q.state = Sending
	}
}

// OnSent marks delivery. Error counts as delivered too, since a later send
// succeeded.
func (q *Queue) OnSent() {
	switch q.state {
	case Sending, Error, Sent:
		q.state = Sent
	}
}

// OnError discards the attributes that caused a hard failure.
func (q *Queue) OnError() {
	q.attrs = map[string]string{}
	q.state = Error
}

// OnMessageError queues the attributes for resend.
func (q *Queue) OnMessageError() {
	q.state = Pending
}

// OnSessionClosed queues the attributes for resend.
func (q *Queue) OnSessionClosed() {
	q.state = Pending
}

func sizeOf(attrs map[string]string) int {
	data, err := json.Marshal(attrs)
	if err != nil {
		return 0
	}
	return len(data)
}
