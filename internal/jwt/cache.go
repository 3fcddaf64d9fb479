// Package jwt caches the short-lived JWT the gateway issues for history
// requests and fetches a fresh one over the socket when it expired.
package jwt

import (
	"time"

	"github.com/codefionn/webmessaging/internal/consts"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Record is a JWT and its expiry in epoch seconds.
type Record struct {
	Token  string
	Expiry int64
}

// Valid reports whether the token is still usable at now, keeping a safety
// margin before the expiry.
func (r Record) Valid(now time.Time) bool {
	return r.Expiry > now.Add(consts.JwtExpiryMargin).Unix()
}

// Requester sends a getJwt frame.
type Requester func() error

// Cache holds at most one JWT. It is driven from the session's event context
// and is not safe for concurrent use.
type Cache struct {
	record    fn.Option[Record]
	pending   []func(token string)
	fetching  bool
	requester Requester
	now       func() time.Time
	log       *logger.Logger
}

// NewCache returns an empty cache. now may be nil.
func NewCache(requester Requester, now func() time.Time, log *logger.Logger) *Cache {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Global()
	}
	return &Cache{
		record:    fn.None[Record](),
		requester: requester,
		now:       now,
		log:       log.WithPrefix("jwt"),
	}
}

// WithValidJwt calls use with a valid token. With a cached valid token use
// runs before WithValidJwt returns; otherwise use is queued until Set is
// called and a getJwt frame is sent unless one is already in flight.
func (c *Cache) WithValidJwt(use func(token string)) error {
	if c.record.IsSome() && c.record.UnsafeFromSome().Valid(c.now()) {
		use(c.record.UnsafeFromSome().Token)
		return nil
	}

	c.pending = append(c.pending, use)
	if c.fetching {
		c.log.Debug("jwt fetch already in flight, %d waiting", len(c.pending))
		return nil
	}

	c.fetching = true
	c.log.Debug("requesting fresh jwt")
	if err := c.requester(); err != nil {
		c.fetching = false
		c.pending = c.pending[:len(c.pending)-1]
		return err
	}
	return nil
}

// Set stores rec and resolves every pending wait in the order it was queued.
func (c *Cache) Set(rec Record) {
	c.record = fn.Some(rec)
	c.fetching = false

	waiting := c.pending
	c.pending = nil
	for _, use := range waiting {
		use(rec.Token)
	}
}

// Current returns the cached record, if any.
func (c *Cache) Current() fn.Option[Record] {
	return c.record
}

// Pending returns the number of queued waits.
func (c *Cache) Pending() int {
	return len(c.pending)
}

// Clear forgets the token and abandons queued waits.
func (c *Cache) Clear() {
	c.record = fn.None[Record]()
	c.pending = nil
	c.fetching = false
}
