package twsgo

import (
	"sync"

	"twsgo/internal/schema"
)

// Handler receives inbound events on the reader goroutine. Handlers must
// not block; hand work off to another goroutine when it is not trivial.
type Handler func(schema.Event)

// HandlerID identifies a registered handler for removal.
type HandlerID uint64

type handlerRegistry struct {
	mu     sync.RWMutex
	nextID HandlerID
	byKind map[schema.EventKind]map[HandlerID]Handler
}

// OnEvent registers a handler for one event kind.
func (c *Client) OnEvent(kind schema.EventKind, fn Handler) HandlerID {
	return c.handlers.add(kind, fn)
}

// RemoveHandler unregisters a handler. Unknown ids are a no-op.
func (c *Client) RemoveHandler(kind schema.EventKind, id HandlerID) {
	c.handlers.remove(kind, id)
}

func (r *handlerRegistry) add(kind schema.EventKind, fn Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKind == nil {
		r.byKind = make(map[schema.EventKind]map[HandlerID]Handler)
	}
	if r.byKind[kind] == nil {
		r.byKind[kind] = make(map[HandlerID]Handler)
	}
	r.nextID++
	id := r.nextID
	r.byKind[kind][id] = fn
	return id
}

func (r *handlerRegistry) remove(kind schema.EventKind, id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKind[kind], id)
}

func (r *handlerRegistry) emit(ev schema.Event) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.byKind[ev.Kind()]))
	for _, fn := range r.byKind[ev.Kind()] {
		handlers = append(handlers, fn)
	}
	r.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
