package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

// Plugin observes the agent event stream. Implementations must be fast and
// must not block; long operations should be async or honor ctx.
type Plugin interface {
	OnEvent(ctx context.Context, e *models.AgentEvent)
}

// PluginFunc adapts an ordinary function into a Plugin.
type PluginFunc func(ctx context.Context, e *models.AgentEvent)

// OnEvent calls the function.
func (f PluginFunc) OnEvent(ctx context.Context, e *models.AgentEvent) {
	f(ctx, e)
}

// PluginRegistry fans events out to registered plugins in registration
// order. A panicking plugin is logged and skipped; it never stops dispatch
// or the run.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
}

// NewPluginRegistry creates an empty plugin registry.
func NewPluginRegistry(logger *slog.Logger) *PluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginRegistry{logger: logger.With("component", "agent.plugins")}
}

// Use registers a plugin.
func (r *PluginRegistry) Use(p Plugin) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, p)
}

// Len returns the number of registered plugins.
func (r *PluginRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Emit dispatches an event to every plugin.
func (r *PluginRegistry) Emit(ctx context.Context, e *models.AgentEvent) {
	r.mu.RLock()
	plugins := make([]Plugin, len(r.plugins))
	copy(plugins, r.plugins)
	r.mu.RUnlock()

	for _, p := range plugins {
		r.safeEmit(ctx, p, e)
	}
}

func (r *PluginRegistry) safeEmit(ctx context.Context, p Plugin, e *models.AgentEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin panicked", "panic", rec, "event_type", e.Type)
		}
	}()
	p.OnEvent(ctx, e)
}
