package canvas

import "sync"

const defaultSubscriberBuffer = 16

// Hub fans committed canvas changes out to subscribers. Delivery is best
// effort: a subscriber whose buffer is full misses the change and should
// resync from a snapshot.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Change]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Change]struct{})}
}

// Subscribe registers a listener. buffer sizes the channel; zero or
// negative picks a small default. The returned cancel removes the
// subscription and closes the channel, and is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Change, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers a change to every subscriber without blocking.
func (h *Hub) Broadcast(change Change) {
	if h == nil {
		return
	}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- change:
		default:
		}
	}
	h.mu.RUnlock()
}

// Len reports the subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
