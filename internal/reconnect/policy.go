// Package reconnect decides whether and when a failed session socket is
// reopened. The session performs the reopen itself.
package reconnect

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/logger"
)

// ErrBudgetExhausted is returned by Reconnect once the retry window closed.
var ErrBudgetExhausted = errors.New("reconnection budget exhausted")

// Scheduler runs f after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func timerScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces the clock used to measure the retry window.
func WithClock(clock backoff.Clock) Option {
	return func(p *Policy) {
		p.clock = clock
	}
}

// WithScheduler replaces time.AfterFunc.
func WithScheduler(s Scheduler) Option {
	return func(p *Policy) {
		p.schedule = s
	}
}

// WithIntervals sets the first and the largest delay between attempts.
func WithIntervals(initial, max time.Duration) Option {
	return func(p *Policy) {
		p.initial = initial
		p.max = max
	}
}

// WithRandomizationFactor sets the jitter of each delay, 0 disables it.
func WithRandomizationFactor(f float64) Option {
	return func(p *Policy) {
		p.jitter = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Policy) {
		p.log = l.WithPrefix("reconnect")
	}
}

// Policy spends a retry budget of timeout, measured from the first failure
// after the last Clear.
type Policy struct {
	timeout  time.Duration
	initial  time.Duration
	max      time.Duration
	jitter   float64
	clock    backoff.Clock
	schedule Scheduler
	backoff  *backoff.ExponentialBackOff
	started  bool
	attempts int
	stop     func() bool
	log      *logger.Logger
}

// NewPolicy returns a policy with the given budget. A zero or negative
// timeout disables reconnection.
func NewPolicy(timeout time.Duration, opts ...Option) *Policy {
	p := &Policy{
		timeout:  timeout,
		initial:  consts.ReconnectInitialInterval,
		max:      consts.ReconnectMaxInterval,
		jitter:   backoff.DefaultRandomizationFactor,
		clock:    systemClock{},
		schedule: timerScheduler,
		log:      logger.Global().WithPrefix("reconnect"),
	}
	for _, opt := range opts {
		opt(p)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	b.RandomizationFactor = p.jitter
	b.MaxElapsedTime = timeout
	b.Clock = p.clock
	p.backoff = b
	return p
}

// ShouldReconnect reports whether retry budget remains.
func (p *Policy) ShouldReconnect() bool {
	if p.timeout <= 0 {
		return false
	}
	if !p.started {
		return true
	}
	return p.backoff.GetElapsedTime() < p.timeout
}

// Attempts returns the retries scheduled since the last Clear.
func (p *Policy) Attempts() int {
	return p.attempts
}

// Reconnect schedules one attempt; onReady runs when it should begin.
func (p *Policy) Reconnect(onReady func()) error {
	if !p.ShouldReconnect() {
		return ErrBudgetExhausted
	}
	if !p.started {
		p.backoff.Reset()
		p.started = true
	}

	delay := p.backoff.NextBackOff()
	if delay == backoff.Stop {
		return ErrBudgetExhausted
	}

	p.attempts++
	p.log.Info("reconnect attempt %d in %s", p.attempts, delay)
	if p.stop != nil {
		p.stop()
	}
	p.stop = p.schedule(delay, onReady)
	return nil
}

// Clear restores the full budget and cancels a scheduled attempt.
func (p *Policy) Clear() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	p.started = false
	p.attempts = 0
}
