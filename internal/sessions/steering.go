package sessions

import (
	"errors"
	"sync"
)

// DefaultSteeringCap bounds queued steering messages per session. Producers
// run at human typing rate, so hitting the cap means the consumer is stuck.
const DefaultSteeringCap = 100

// ErrSteeringFull is returned when the steering queue is at capacity.
var ErrSteeringFull = errors.New("steering queue full")

// SteeringQueue holds user text submitted while the agent loop is running.
// The loop drains it FIFO between engine turns.
type SteeringQueue struct {
	mu    sync.Mutex
	items []string
	cap   int
}

// NewSteeringQueue creates a queue bounded to capacity. Zero or negative
// capacity selects DefaultSteeringCap.
func NewSteeringQueue(capacity int) *SteeringQueue {
	if capacity <= 0 {
		capacity = DefaultSteeringCap
	}
	return &SteeringQueue{cap: capacity}
}

// Push appends a message, rejecting it when the queue is full.
func (q *SteeringQueue) Push(text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		return ErrSteeringFull
	}
	q.items = append(q.items, text)
	return nil
}

// Pop removes and returns the oldest pending message.
func (q *SteeringQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Drain removes and returns all pending messages in arrival order.
func (q *SteeringQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of pending messages.
func (q *SteeringQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all pending messages.
func (q *SteeringQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
