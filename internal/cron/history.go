package cron

import (
	"sync"
	"time"
)

const defaultHistoryLimit = 200

// Firing records one handler invocation.
type Firing struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// History keeps a bounded record of recent firings, oldest dropped first.
type History struct {
	mu    sync.RWMutex
	limit int
	items []Firing
}

// NewHistory creates a history that retains at most limit firings.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit}
}

// Record appends a firing, evicting the oldest entries beyond the limit.
func (h *History) Record(f Firing) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, f)
	if overflow := len(h.items) - h.limit; overflow > 0 {
		h.items = append(h.items[:0:0], h.items[overflow:]...)
	}
}

// Recent returns up to limit firings, newest first. An empty job name
// matches all jobs; limit <= 0 means no cap.
func (h *History) Recent(job string, limit int) []Firing {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Firing
	for i := len(h.items) - 1; i >= 0; i-- {
		if job != "" && h.items[i].Job != job {
			continue
		}
		out = append(out, h.items[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained firings.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
