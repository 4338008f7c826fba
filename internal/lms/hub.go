package lms

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber receives every published scan.
type Subscriber func(ScanMessage)

type subscription struct {
	id   string
	name string
	fn   Subscriber
}

// Hub delivers scans to subscribers in registration order.
type Hub struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn under a descriptive name and returns its id.
func (h *Hub) Subscribe(name string, fn Subscriber) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, subscription{id: id, name: name, fn: fn})
	return id
}

// Unsubscribe removes the subscriber with id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Names returns subscriber names in delivery order.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, len(h.subs))
	for i, s := range h.subs {
		names[i] = s.name
	}
	return names
}

// Publish delivers m synchronously to each subscriber.
func (h *Hub) Publish(m ScanMessage) {
	h.mu.RLock()
	subs := h.subs
	h.mu.RUnlock()
	for _, s := range subs {
		s.fn(m)
	}
}
