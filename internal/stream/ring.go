package stream

import "twsgo/internal/schema"

// ring is a fixed-capacity quote buffer with strict FIFO eviction: once
// full, each push drops the oldest entry.
type ring struct {
	buf   []schema.Quote
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]schema.Quote, capacity)}
}

func (r *ring) push(q schema.Quote) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = q
		r.count++
		return
	}
	r.buf[r.head] = q
	r.head = (r.head + 1) % len(r.buf)
}

// drain returns buffered quotes in arrival order and empties the ring.
func (r *ring) drain() []schema.Quote {
	if r.count == 0 {
		return nil
	}
	out := make([]schema.Quote, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = 0
	r.count = 0
	return out
}

func (r *ring) len() int {
	return r.count
}
