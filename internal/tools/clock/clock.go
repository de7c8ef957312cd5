// Package clock provides a lightweight tool that reports the current time.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// Tool reports the current date and time.
type Tool struct {
	now func() time.Time
}

// NewTool creates a clock tool.
func NewTool() *Tool {
	return &Tool{now: time.Now}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return "clock"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Report the current date and time, optionally in an IANA time zone."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA time zone name, e.g. America/New_York (default: server local time).",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute reports the time in the requested zone.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	_ = ctx
	var input struct {
		Timezone string `json:"timezone"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
		}
	}

	loc := time.Local
	if tz := strings.TrimSpace(input.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return toolError(fmt.Sprintf("unknown timezone %q", tz)), nil
		}
		loc = l
	}

	now := t.now().In(loc)
	result := map[string]interface{}{
		"iso":      now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"timezone": now.Location().String(),
		"friendly": friendly(now),
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &models.ToolResult{Content: string(payload)}, nil
}

// friendly renders a line like "Friday, January 24th, 2025 - 14:30".
func friendly(t time.Time) string {
	return fmt.Sprintf("%s, %s %d%s, %d - %s",
		t.Weekday(), t.Month(), t.Day(), ordinalSuffix(t.Day()), t.Year(), t.Format("15:04"))
}

// ordinalSuffix returns the English ordinal suffix for a day number.
// Days ending in 11, 12, or 13 always take "th".
func ordinalSuffix(day int) string {
	last := day % 100
	if last >= 11 && last <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func toolError(message string) *models.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &models.ToolResult{Content: string(payload), IsError: true}
}
