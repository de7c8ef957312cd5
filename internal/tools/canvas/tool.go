// Package canvas exposes the session canvas to the agent: a push tool the
// model calls to place A2UI components, and the Pusher that backs it.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/pkg/models"
)

// Tool pushes A2UI components onto the canvas of the calling session.
type Tool struct{}

// NewTool creates a canvas push tool.
func NewTool() *Tool {
	return &Tool{}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return "canvas_push"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Push an A2UI component onto the session canvas for the user to see."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"component": map[string]interface{}{
				"type":        "object",
				"description": "A2UI component descriptor, e.g. {\"type\":\"markdown\",\"markdown\":{\"content\":\"# Hi\"}}.",
			},
		},
		"required": []string{"component"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute pushes the component through the canvas handle on the tool
// context.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Component json.RawMessage `json:"component"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if len(bytes.TrimSpace(input.Component)) == 0 {
		return toolError("component is required"), nil
	}

	tc, ok := agent.ToolContextFromContext(ctx)
	if !ok || tc.Canvas == nil {
		return toolError("no canvas attached to this session"), nil
	}

	nodeID, err := tc.Canvas.Push(ctx, input.Component)
	if err != nil {
		return toolError(fmt.Sprintf("push component: %v", err)), nil
	}

	result := map[string]interface{}{
		"pushed":  true,
		"node_id": nodeID,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &models.ToolResult{Content: string(payload)}, nil
}

func toolError(message string) *models.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &models.ToolResult{Content: string(payload), IsError: true}
}
