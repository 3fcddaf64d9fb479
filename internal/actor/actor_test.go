package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	content string
}

func (m testMessage) Type() string { return "test" }

type failMessage struct{}

func (failMessage) Type() string { return "fail" }

var errFail = errors.New("fail")

type testActor struct {
	mu       sync.Mutex
	received []string
	started  bool
	stopped  bool
	inside   int
	maxInner int

	insideAtStop int
	lateReceives int
}

func (a *testActor) ID() string { return "test" }

func (a *testActor) Start(context.Context) error {
	a.started = true
	return nil
}

func (a *testActor) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.insideAtStop = a.inside
	return nil
}

func (a *testActor) Receive(_ context.Context, msg Message) error {
	a.mu.Lock()
	if a.stopped {
		a.lateReceives++
	}
	a.inside++
	if a.inside > a.maxInner {
		a.maxInner = a.inside
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inside--
		a.mu.Unlock()
	}()

	switch m := msg.(type) {
	case testMessage:
		time.Sleep(time.Millisecond)
		a.mu.Lock()
		a.received = append(a.received, m.content)
		a.mu.Unlock()
		return nil
	case failMessage:
		return errFail
	}
	return nil
}

func (a *testActor) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.received...)
}

// TestSequentialSendReturnsReceiveError tests synchronous error propagation
func TestSequentialSendReturnsReceiveError(t *testing.T) {
	a := &testActor{}
	ref := NewRef("seq", a, 0, WithSequentialProcessing())
	require.NoError(t, ref.Start(context.Background()))
	assert.True(t, a.started)

	require.NoError(t, ref.Send(testMessage{content: "hello"}))
	assert.Equal(t, []string{"hello"}, a.messages())
	assert.ErrorIs(t, ref.Send(failMessage{}), errFail)
}

// TestSequentialSendSerializes tests that concurrent senders never overlap
func TestSequentialSendSerializes(t *testing.T) {
	a := &testActor{}
	ref := NewRef("seq", a, 0, WithSequentialProcessing())
	require.NoError(t, ref.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ref.Send(testMessage{content: "x"})
		}()
	}
	wg.Wait()

	assert.Len(t, a.messages(), 20)
	assert.Equal(t, 1, a.maxInner)
}

func TestQueuedSendProcessesInOrder(t *testing.T) {
	a := &testActor{}
	ref := NewRef("queued", a, 10)
	require.NoError(t, ref.Start(context.Background()))

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, ref.Send(testMessage{content: c}))
	}
	require.Eventually(t, func() bool { return len(a.messages()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, a.messages())

	require.NoError(t, ref.Stop(context.Background()))
	assert.True(t, a.stopped)
}

func TestSendAfterStop(t *testing.T) {
	a := &testActor{}
	ref := NewRef("seq", a, 0, WithSequentialProcessing())
	require.NoError(t, ref.Start(context.Background()))
	require.NoError(t, ref.Stop(context.Background()))

	assert.ErrorIs(t, ref.Send(testMessage{content: "late"}), ErrStopped)
	// a second stop is a no-op
	assert.NoError(t, ref.Stop(context.Background()))
}

func TestSequentialStopWaitsForReceive(t *testing.T) {
	a := &testActor{}
	ref := NewRef("seq", a, 0, WithSequentialProcessing())
	require.NoError(t, ref.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := ref.Send(testMessage{content: "x"})
				if err != nil {
					assert.ErrorIs(t, err, ErrStopped)
					return
				}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, ref.Stop(context.Background()))
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.True(t, a.stopped)
	assert.Zero(t, a.insideAtStop)
	assert.Zero(t, a.lateReceives)
}

func TestMailboxFull(t *testing.T) {
	a := &testActor{}
	ref := NewRef("queued", a, 1)
	// not started: nothing drains the mailbox
	require.NoError(t, ref.Send(testMessage{content: "a"}))
	assert.ErrorIs(t, ref.Send(testMessage{content: "b"}), ErrMailboxFull)
}
