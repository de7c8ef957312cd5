package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

func TestTracePluginWritesHeaderThenEvents(t *testing.T) {
	var buf bytes.Buffer
	p := NewTracePlugin(&buf, "run-42")

	p.OnEvent(context.Background(), &models.AgentEvent{Type: models.EventText, Sequence: 1})
	p.OnEvent(context.Background(), &models.AgentEvent{Type: models.EventComplete, Sequence: 2})

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line not JSON: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 events", len(lines))
	}
	if lines[0]["run_id"] != "run-42" || lines[0]["version"] != float64(1) {
		t.Errorf("header = %v", lines[0])
	}
	if lines[1]["type"] != "text" || lines[2]["type"] != "complete" {
		t.Errorf("events = %v, %v", lines[1], lines[2])
	}
}

func TestTracePluginFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace.jsonl")
	p, err := NewTracePluginFile(path, "run-7")
	if err != nil {
		t.Fatalf("new trace file: %v", err)
	}
	p.OnEvent(context.Background(), &models.AgentEvent{Type: models.EventComplete, Sequence: 1})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !bytes.Contains(data, []byte(`"run-7"`)) || !bytes.Contains(data, []byte(`"complete"`)) {
		t.Errorf("trace content = %s", data)
	}

	// Writes after Close are dropped, not crashes.
	p.OnEvent(context.Background(), &models.AgentEvent{Type: models.EventText})
	if err := p.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
