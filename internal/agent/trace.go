package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// TracePlugin writes agent events to a JSONL stream for debugging and
// replay. Each event is one JSON line, written immediately for crash
// safety.
type TracePlugin struct {
	mu     sync.Mutex
	writer io.Writer
	file   *os.File // non-nil when we own the file
	header *traceHeader
	wrote  bool
}

type traceHeader struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// NewTracePlugin writes events to w.
func NewTracePlugin(w io.Writer, runID string) *TracePlugin {
	return &TracePlugin{
		writer: w,
		header: &traceHeader{Version: 1, RunID: runID, StartedAt: time.Now()},
	}
}

// NewTracePluginFile creates or truncates path and writes events to it.
// Call Close when done.
func NewTracePluginFile(path, runID string) (*TracePlugin, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	p := NewTracePlugin(f, runID)
	p.file = f
	return p, nil
}

// OnEvent implements Plugin. Write errors are swallowed; tracing must never
// affect the run.
func (p *TracePlugin) OnEvent(_ context.Context, e *models.AgentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return
	}
	if !p.wrote {
		p.wrote = true
		p.writeLine(p.header)
	}
	p.writeLine(e)
}

func (p *TracePlugin) writeLine(v any) {
	line, err := json.Marshal(v)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = p.writer.Write(line)
}

// Close flushes and closes the underlying file when the plugin owns it.
func (p *TracePlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = nil
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}
