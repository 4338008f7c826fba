package logparse

import "sync"

// Listener receives a session record while the tokenizer runs. It is called
// synchronously, in record order, before parsing continues.
type Listener func(level Level, message string, rec Record)

// ListenerHandle identifies one registration.
type ListenerHandle struct {
	component string
	id        uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// ListenerRegistry maps component names to ordered listener lists.
type ListenerRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string][]listenerEntry
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{byName: make(map[string][]listenerEntry)}
}

// Register adds fn for records of component. Listeners of one component
// are called in registration order.
func (r *ListenerRegistry) Register(component string, fn Listener) ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.byName[component] = append(r.byName[component], listenerEntry{id: r.nextID, fn: fn})
	return ListenerHandle{component: component, id: r.nextID}
}

// Unregister removes a registration. Unknown handles are ignored.
func (r *ListenerRegistry) Unregister(h ListenerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.byName[h.component]
	for i, e := range entries {
		if e.id == h.id {
			r.byName[h.component] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(r.byName[h.component]) == 0 {
		delete(r.byName, h.component)
	}
}

// Has reports whether any listener is registered for component.
func (r *ListenerRegistry) Has(component string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName[component]) > 0
}

// Dispatch delivers rec to the listeners of its component.
func (r *ListenerRegistry) Dispatch(rec Record) {
	r.mu.RLock()
	entries := r.byName[rec.Component]
	r.mu.RUnlock()

	for _, e := range entries {
		e.fn(rec.Level, rec.Message, rec)
	}
}
