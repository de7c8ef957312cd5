package gateway

import (
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

const defaultEventBuffer = 64

// EventHub fans agent events out to per-session subscribers. WebSocket
// bridges subscribe here; delivery is non-blocking and slow subscribers
// lose events rather than stalling the run.
type EventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *models.AgentEvent]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan *models.AgentEvent]struct{})}
}

// Subscribe registers a listener for one session's events. The returned
// cancel is idempotent and closes the channel.
func (h *EventHub) Subscribe(sessionID string, buffer int) (<-chan *models.AgentEvent, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan *models.AgentEvent, buffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan *models.AgentEvent]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers an event to every subscriber of the session.
func (h *EventHub) Broadcast(sessionID string, event *models.AgentEvent) {
	if h == nil || event == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers reports the listener count for a session.
func (h *EventHub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
