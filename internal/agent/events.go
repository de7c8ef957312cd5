package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// emitter stamps and delivers events for one run. All methods are called
// from the run goroutine, so the sequence counter needs no synchronization.
// Plugins see every event before it is offered to the consumer channel; a
// consumer that stops reading after cancellation loses events rather than
// wedging the run goroutine.
type emitter struct {
	ch        chan *models.AgentEvent
	plugins   *PluginRegistry
	logger    *slog.Logger
	now       func() time.Time
	runID     string
	sessionID string

	iteration int
	seq       uint64
	thinking  bool
	textSent  bool
	closed    bool
	dropped   int
}

func (em *emitter) event(t models.EventType) *models.AgentEvent {
	em.seq++
	return &models.AgentEvent{
		Type:      t,
		Sequence:  em.seq,
		RunID:     em.runID,
		SessionID: em.sessionID,
		Iteration: em.iteration,
		Time:      em.now(),
	}
}

func (em *emitter) send(ctx context.Context, e *models.AgentEvent) {
	if em.closed {
		return
	}
	if em.plugins != nil {
		em.plugins.Emit(ctx, e)
	}
	select {
	case em.ch <- e:
	case <-ctx.Done():
		em.dropped++
	}
}

// sendTerminal delivers the turn-ending event even when the run context is
// already cancelled, as long as the consumer is still reading.
func (em *emitter) sendTerminal(ctx context.Context, e *models.AgentEvent) {
	if em.closed {
		return
	}
	if em.plugins != nil {
		em.plugins.Emit(ctx, e)
	}
	select {
	case em.ch <- e:
	default:
		select {
		case em.ch <- e:
		case <-time.After(time.Second):
			em.dropped++
			em.logger.Warn("terminal event dropped, consumer not reading", "type", e.Type)
		}
	}
}

func (em *emitter) close() {
	if em.closed {
		return
	}
	em.closed = true
	if em.dropped > 0 {
		em.logger.Debug("events dropped after cancellation", "count", em.dropped)
	}
	close(em.ch)
}

// thinkingOnce emits at most one thinking event per run, on the first
// thinking chunk. Later thinking chunks are dropped, and once any text
// has gone out no thinking is emitted at all, so the event stream keeps
// thinking strictly ahead of any text or tool event.
func (em *emitter) thinkingOnce(ctx context.Context, delta string) {
	if em.thinking || em.textSent {
		return
	}
	em.thinking = true
	e := em.event(models.EventThinking)
	e.Text = &models.TextEvent{Delta: delta, Partial: delta}
	em.send(ctx, e)
}

func (em *emitter) text(ctx context.Context, delta, partial string) {
	em.textSent = true
	e := em.event(models.EventText)
	e.Text = &models.TextEvent{Delta: delta, Partial: partial}
	em.send(ctx, e)
}

func (em *emitter) toolStart(ctx context.Context, call models.ToolCall) {
	e := em.event(models.EventToolStart)
	e.Tool = &models.ToolEvent{CallID: call.ID, Name: call.Name, Args: call.Input}
	em.send(ctx, e)
}

func (em *emitter) toolProgress(ctx context.Context, call models.ToolCall, text string) {
	e := em.event(models.EventToolProgress)
	e.Tool = &models.ToolEvent{CallID: call.ID, Name: call.Name, Progress: text}
	em.send(ctx, e)
}

func (em *emitter) toolEnd(ctx context.Context, call models.ToolCall, result *models.ToolResult, elapsed time.Duration) {
	e := em.event(models.EventToolEnd)
	e.Tool = &models.ToolEvent{CallID: call.ID, Name: call.Name, Result: result, Elapsed: elapsed}
	em.send(ctx, e)
}

func (em *emitter) complete(ctx context.Context, answer string, verification *models.VerificationResult) {
	e := em.event(models.EventComplete)
	e.Complete = &models.CompleteEvent{Answer: answer, Verification: verification}
	em.sendTerminal(ctx, e)
}

func (em *emitter) error(ctx context.Context, kind models.ErrorKind, msg string, err error) {
	e := em.event(models.EventError)
	e.Error = &models.ErrorEvent{Kind: kind, Message: msg, Err: err}
	em.sendTerminal(ctx, e)
}

func (em *emitter) aborted(ctx context.Context, reason string) {
	e := em.event(models.EventAborted)
	e.Aborted = &models.AbortedEvent{Reason: reason}
	em.sendTerminal(ctx, e)
}
