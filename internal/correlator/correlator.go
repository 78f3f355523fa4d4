package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

type outcome struct {
	ev  schema.Event
	err error
}

type pending struct {
	ch   chan outcome
	done bool
}

// Correlator owns the session's request id space and matches replies to
// outstanding requests. Ids are monotonically increasing and never reused
// within a session; order ids draw from the same counter so every inbound
// event routes by one id.
type Correlator struct {
	mu      sync.Mutex
	nextID  schema.RequestID
	waiting map[schema.RequestID]*pending
}

func New() *Correlator {
	return &Correlator{
		nextID:  1,
		waiting: make(map[schema.RequestID]*pending),
	}
}

// NextID allocates a fresh request id.
func (c *Correlator) NextID() schema.RequestID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// Seed raises the id counter to at least id. Called when the gateway
// announces NextValidId so locally allocated order ids never collide with
// the gateway's floor.
func (c *Correlator) Seed(id schema.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.nextID {
		c.nextID = id
	}
}

// Expect registers a one-shot waiter for id. Must be called before the
// request goes on the wire so an early reply is never dropped. Every
// Expect must be paired with an AwaitOnce, which consumes the waiter.
func (c *Correlator) Expect(id schema.RequestID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.waiting[id]; ok {
		return errors.Wrapf(exception.ErrDuplicateRequest, "id %d", id)
	}
	c.waiting[id] = &pending{ch: make(chan outcome, 1)}
	return nil
}

// AwaitOnce blocks until the reply registered under id arrives, the
// timeout elapses or ctx is cancelled. The waiter is consumed either way.
func (c *Correlator) AwaitOnce(ctx context.Context, id schema.RequestID, timeout time.Duration) (schema.Event, error) {
	c.mu.Lock()
	p, ok := c.waiting[id]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrInternal, "await on unregistered id %d", id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer c.drop(id)

	select {
	case out := <-p.ch:
		return out.ev, out.err
	case <-timer.C:
		return nil, errors.Wrapf(exception.ErrTimeout, "id %d after %s", id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers a reply to the waiter for id. Duplicate resolutions and
// unknown ids are no-ops.
func (c *Correlator) Resolve(id schema.RequestID, ev schema.Event) bool {
	return c.finish(id, outcome{ev: ev})
}

// Fail delivers an error to the waiter for id.
func (c *Correlator) Fail(id schema.RequestID, err error) bool {
	return c.finish(id, outcome{err: err})
}

// FailAll fails every outstanding waiter with err. Used when the
// connection drops so no caller blocks until its timeout.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.waiting {
		if !p.done {
			p.done = true
			p.ch <- outcome{err: err}
		}
	}
}

// Dispatch routes an inbound event to its waiter, if any. A non-warning
// ErrMsg fails the request instead of resolving it. Reports whether a
// waiter consumed the event; the caller handles the rest of the routing.
func (c *Correlator) Dispatch(ev schema.Event) bool {
	id := ev.ReqID()
	if id < 0 {
		return false
	}
	if em, ok := ev.(schema.ErrMsg); ok && !em.IsWarning() {
		return c.Fail(id, errors.Wrapf(exception.ErrRequestRejected, "code %d: %s", em.Code, em.Msg))
	}
	return c.Resolve(id, ev)
}

// Pending returns the number of waiters still awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.waiting {
		if !p.done {
			n++
		}
	}
	return n
}

func (c *Correlator) finish(id schema.RequestID, out outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.waiting[id]
	if !ok || p.done {
		return false
	}
	p.done = true
	p.ch <- out
	return true
}

func (c *Correlator) drop(id schema.RequestID) {
	c.mu.Lock()
	delete(c.waiting, id)
	c.mu.Unlock()
}
