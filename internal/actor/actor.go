// Package actor provides the serial event context a session runs in.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codefionn/webmessaging/internal/logger"
)

// ErrStopped is returned by Send after Stop.
var ErrStopped = errors.New("actor is stopped")

// ErrMailboxFull is returned by Send when a queued actor cannot accept more.
var ErrMailboxFull = errors.New("actor mailbox is full")

// Message represents a message sent to an actor
type Message interface {
	Type() string
}

// Actor processes messages one at a time.
type Actor interface {
	// Receive processes an incoming message
	Receive(ctx context.Context, msg Message) error
	// Start is called once before the first message
	Start(ctx context.Context) error
	// Stop is called once after the last message
	Stop(ctx context.Context) error
	// ID returns the actor's identifier
	ID() string
}

// Ref is a reference to a running actor.
type Ref struct {
	id         string
	mailbox    chan Message
	actor      Actor
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	mu         sync.RWMutex
	stopped    bool
	sequential bool
	sequenceMu sync.Mutex
	ctx        context.Context
	log        *logger.Logger
}

// RefOption configures a Ref.
type RefOption func(*Ref)

// WithSequentialProcessing makes Send run Receive on the caller's goroutine
// under the ref's lock and return its error. No run loop is started.
func WithSequentialProcessing() RefOption {
	return func(ref *Ref) {
		ref.sequential = true
	}
}

// WithLogger sets the logger used for errors of queued messages.
func WithLogger(l *logger.Logger) RefOption {
	return func(ref *Ref) {
		ref.log = l
	}
}

// NewRef creates a reference with the given id, actor and mailbox size.
func NewRef(id string, actor Actor, mailboxSize int, opts ...RefOption) *Ref {
	ref := &Ref{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
		ctx:     context.Background(),
		log:     logger.Global(),
	}
	for _, opt := range opts {
		opt(ref)
	}
	ref.log = ref.log.WithPrefix("actor:" + id)
	return ref
}

// ID returns the actor's ID
func (ref *Ref) ID() string {
	return ref.id
}

// Send delivers a message. Sequential refs return the Receive error;
// queued refs only report whether the message was accepted.
func (ref *Ref) Send(msg Message) error {
	ref.mu.RLock()
	if ref.stopped {
		ref.mu.RUnlock()
		return fmt.Errorf("%s: %w", ref.id, ErrStopped)
	}
	sequential := ref.sequential
	ctx := ref.ctx
	ref.mu.RUnlock()

	if sequential {
		ref.sequenceMu.Lock()
		defer ref.sequenceMu.Unlock()
		if ref.isStopped() {
			return fmt.Errorf("%s: %w", ref.id, ErrStopped)
		}
		return ref.actor.Receive(ctx, msg)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("%s: %w", ref.id, ErrMailboxFull)
	}
}

// Start starts the actor and, unless sequential, its processing loop.
func (ref *Ref) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.mu.Lock()
	ref.cancel = cancel
	ref.ctx = ctx
	ref.mu.Unlock()

	if ref.sequential {
		return nil
	}

	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop stops the actor gracefully. Messages still queued are dropped. For
// sequential refs the actor is stopped under the sequence lock, so no Receive
// overlaps or follows it.
func (ref *Ref) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	cancel := ref.cancel
	ref.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		ref.wg.Wait()
		if ref.sequential {
			ref.sequenceMu.Lock()
		}
		close(done)
	}()

	select {
	case <-done:
		if ref.sequential {
			defer ref.sequenceMu.Unlock()
		}
		return ref.actor.Stop(ctx)
	case <-ctx.Done():
		if ref.sequential {
			go func() {
				<-done
				ref.sequenceMu.Unlock()
			}()
		}
		return ctx.Err()
	}
}

func (ref *Ref) isStopped() bool {
	ref.mu.RLock()
	defer ref.mu.RUnlock()
	return ref.stopped
}

func (ref *Ref) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ref.mailbox:
			if err := ref.actor.Receive(ctx, msg); err != nil {
				ref.log.Error("error processing %s: %v", msg.Type(), err)
			}
		}
	}
}
