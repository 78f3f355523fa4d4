package stream

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// Subscription is one live market data stream and its quote buffer.
type Subscription struct {
	ID       schema.RequestID
	Contract schema.Contract

	ring     *ring
	last     schema.Quote
	received uint64
}

// ActiveSubscription is the snapshot the connection manager needs to
// re-issue a subscribe request after reconnect.
type ActiveSubscription struct {
	ID       schema.RequestID
	Contract schema.Contract
}

// Registry tracks live subscriptions, folds inbound ticks into per-stream
// quote buffers and drives the periodic session cycle that works around
// gateway staleness.
type Registry struct {
	mu             sync.Mutex
	subs           map[schema.RequestID]*Subscription
	received       uint64
	reconnectEvery uint64
	cycle          func()
}

// NewRegistry creates a registry. cycle is invoked (on its own goroutine)
// whenever the process-wide received-quote counter reaches the configured
// reconnect threshold.
func NewRegistry(cycle func()) *Registry {
	return &Registry{
		subs:  make(map[schema.RequestID]*Subscription),
		cycle: cycle,
	}
}

// Add registers a subscription. Capacity must be >= 1. A positive
// reconnectEvery updates the process-wide cycle threshold.
func (r *Registry) Add(id schema.RequestID, contract schema.Contract, capacity int, reconnectEvery uint64) error {
	if capacity < 1 {
		return exception.ErrInvalidCapacity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; ok {
		return exception.ErrDuplicateTicker
	}
	r.subs[id] = &Subscription{
		ID:       id,
		Contract: contract,
		ring:     newRing(capacity),
		last:     schema.Quote{Symbol: contract.Symbol},
	}
	if reconnectEvery > 0 {
		r.reconnectEvery = reconnectEvery
	}
	return nil
}

// Offer folds a tick event into its subscription's buffer. It reports
// whether the id was known; unknown ids are the caller's to log and drop.
func (r *Registry) Offer(ev schema.Event) bool {
	var cycle func()

	r.mu.Lock()
	sub, ok := r.subs[ev.ReqID()]
	if !ok {
		r.mu.Unlock()
		return false
	}
	switch tick := ev.(type) {
	case schema.TickPrice:
		sub.last = sub.last.Apply(tick.Tick, tick.Price, tick.Size, tick.Received)
	case schema.TickSize:
		sub.last = sub.last.Apply(tick.Tick, decimal.Zero, tick.Size, tick.Received)
	default:
		r.mu.Unlock()
		return false
	}
	sub.ring.push(sub.last)
	sub.received++
	r.received++
	if r.reconnectEvery > 0 && r.received >= r.reconnectEvery {
		r.received = 0
		cycle = r.cycle
	}
	r.mu.Unlock()

	if cycle != nil {
		logs.Info("quote reconnect threshold reached, cycling session")
		go cycle()
	}
	return true
}

// PopAll drains and returns buffered quotes in arrival order. Non-blocking.
func (r *Registry) PopAll(id schema.RequestID) ([]schema.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, exception.ErrUnknownSubscription
	}
	return sub.ring.drain(), nil
}

// Remove deletes a subscription and returns any buffered-but-unread quotes
// so unsubscribe can flush them to the caller.
func (r *Registry) Remove(id schema.RequestID) ([]schema.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, exception.ErrUnknownSubscription
	}
	delete(r.subs, id)
	return sub.ring.drain(), nil
}

// Active returns the subscriptions the connection manager must re-issue
// after a reconnect.
func (r *Registry) Active() []ActiveSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveSubscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, ActiveSubscription{ID: sub.ID, Contract: sub.Contract})
	}
	return out
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Received returns the lifetime quote count for one subscription.
func (r *Registry) Received(id schema.RequestID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[id]; ok {
		return sub.received
	}
	return 0
}
