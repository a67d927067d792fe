// Package service implements the message poller and event fan-out
package service

import (
	"sync"

	"github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
)

// Hub fans events out to subscribers. Delivery is best-effort: a subscriber
// whose buffer is full misses the event instead of blocking the publisher
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan domain.Event
}

// NewHub builds an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan domain.Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel detaches it and closes its channel
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has buffer room
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
