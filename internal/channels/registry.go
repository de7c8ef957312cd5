package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

// Registry holds the configured adapters keyed by channel type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ChannelType]Adapter)}
}

// Register adds an adapter. A second adapter of the same type replaces the
// first.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get returns the adapter for a channel type.
func (r *Registry) Get(channelType models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channelType]
	return adapter, ok
}

// All returns the registered adapters in no particular order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	return adapters
}

// StartAll starts every adapter, stopping at the first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, adapter := range r.All() {
		if err := adapter.Start(ctx); err != nil {
			return fmt.Errorf("start %s adapter: %w", adapter.Type(), err)
		}
	}
	return nil
}

// StopAll stops every adapter and returns the last error seen.
func (r *Registry) StopAll(ctx context.Context) error {
	var lastErr error
	for _, adapter := range r.All() {
		if err := adapter.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// AggregateMessages fans every adapter's inbound stream into one channel.
// The returned channel drains until ctx is cancelled; adapters whose
// streams close simply stop contributing.
func (r *Registry) AggregateMessages(ctx context.Context) <-chan *models.InboundMessage {
	out := make(chan *models.InboundMessage)
	for _, adapter := range r.All() {
		go func(a Adapter) {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-a.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(adapter)
	}
	return out
}
