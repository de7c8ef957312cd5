package agent

import (
	"context"
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

func TestPluginRegistryDispatchOrder(t *testing.T) {
	reg := NewPluginRegistry(discardLogger())
	var order []string
	reg.Use(PluginFunc(func(ctx context.Context, e *models.AgentEvent) {
		order = append(order, "first")
	}))
	reg.Use(PluginFunc(func(ctx context.Context, e *models.AgentEvent) {
		order = append(order, "second")
	}))

	reg.Emit(context.Background(), &models.AgentEvent{Type: models.EventText})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("dispatch order = %v", order)
	}
}

func TestPluginRegistryPanicIsolated(t *testing.T) {
	reg := NewPluginRegistry(discardLogger())
	reg.Use(PluginFunc(func(ctx context.Context, e *models.AgentEvent) {
		panic("plugin bug")
	}))
	var got *models.AgentEvent
	reg.Use(PluginFunc(func(ctx context.Context, e *models.AgentEvent) {
		got = e
	}))

	ev := &models.AgentEvent{Type: models.EventComplete}
	reg.Emit(context.Background(), ev)

	if got != ev {
		t.Error("panicking plugin stopped dispatch to later plugins")
	}
}

func TestPluginRegistryIgnoresNil(t *testing.T) {
	reg := NewPluginRegistry(discardLogger())
	reg.Use(nil)
	if reg.Len() != 0 {
		t.Errorf("Len = %d after registering nil", reg.Len())
	}
	// Emitting with no plugins is a no-op.
	reg.Emit(context.Background(), &models.AgentEvent{Type: models.EventText})
}
