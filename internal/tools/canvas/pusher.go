package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/agent"
	canvascore "github.com/haasonsaas/aide/internal/canvas"
)

// Pusher adapts the canvas state arena to the push seam tools consume.
// The target state is the one keyed by the session id on the tool context.
type Pusher struct {
	manager *canvascore.Manager
}

// NewPusher creates a pusher over the canvas manager.
func NewPusher(manager *canvascore.Manager) *Pusher {
	return &Pusher{manager: manager}
}

// Push validates the component and adds it to the session canvas as a new
// node, returning the node id. New nodes cascade diagonally so stacked
// pushes stay visible until the user arranges them.
func (p *Pusher) Push(ctx context.Context, component json.RawMessage) (string, error) {
	if p == nil || p.manager == nil {
		return "", errors.New("canvas manager unavailable")
	}
	tc, ok := agent.ToolContextFromContext(ctx)
	if !ok || tc.SessionID == "" {
		return "", errors.New("no session on context")
	}

	var comp canvascore.Component
	if err := json.Unmarshal(component, &comp); err != nil {
		return "", fmt.Errorf("decode component: %w", err)
	}
	if err := comp.Validate(); err != nil {
		return "", err
	}

	state := p.manager.GetOrCreate(tc.SessionID)
	offset := float64(24 * (state.NodeCount() % 12))
	node := canvascore.Node{
		ID:        uuid.NewString(),
		Component: comp,
		X:         offset,
		Y:         offset,
	}
	if err := state.AddNode(node); err != nil {
		return "", err
	}
	return node.ID, nil
}

var _ agent.CanvasPusher = (*Pusher)(nil)
