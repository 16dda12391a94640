package steps

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-observer queue length used when none is given.
const DefaultBuffer = 64

// Subscription is one observer's handle. Events arrive on Events() in
// publish order until the subscription is closed, after which the channel
// is closed too.
type Subscription struct {
	id     uint64
	events chan Event
	once   sync.Once
}

func (s *Subscription) ID() uint64 {
	return s.id
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub fans published events out to every live subscription. Publish never
// blocks: each observer has a bounded queue, and an observer whose queue is
// full is evicted rather than allowed to stall the publisher or lose events
// silently. There is no replay; a new subscription sees only later events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool

	published atomic.Uint64
	evicted   atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, events: make(chan Event, h.buffer)}
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub)
}

func (h *Hub) remove(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.subs[sub.id]
	if ok {
		delete(h.subs, sub.id)
	}
	// Closing under the write lock guarantees no Publish is mid-send.
	sub.close()
	return ok
}

// Publish delivers evt to every current subscription.
func (h *Hub) Publish(evt Event) {
	var slow []*Subscription

	h.mu.RLock()
	for _, sub := range h.subs {
		select {
		case sub.events <- evt:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()
	h.published.Add(1)

	for _, sub := range slow {
		if h.remove(sub) {
			h.evicted.Add(1)
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Published is the number of events published since start.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Evicted is the number of observers dropped for falling behind.
func (h *Hub) Evicted() uint64 {
	return h.evicted.Load()
}

// Close drops every subscription; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.close()
	}
}
