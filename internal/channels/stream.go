package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/pkg/models"
)

// StreamManager bridges one agent run onto one channel conversation. When
// the adapter can edit, the first text delta goes out as a fresh message
// and later deltas rewrite it in place, throttled by the channel's update
// interval. When it cannot, deltas are buffered and the complete answer is
// sent at the end, split to the platform's message limit. Send and edit
// failures are surfaced to the caller; the agent run itself continues.
type StreamManager struct {
	mu sync.Mutex

	adapter   Adapter
	editor    EditableAdapter
	mode      StreamingMode
	behavior  StreamingBehavior
	channelID string
	replyTo   string
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	messageID   string
	accumulated string
	lastEdit    time.Time
	editFailed  bool
	stopped     bool
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithStreamLogger sets the logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(m *StreamManager) {
		if logger != nil {
			m.logger = logger.With("component", "stream")
		}
	}
}

// WithStreamMetrics records deliveries on the given metrics.
func WithStreamMetrics(metrics *observability.Metrics) StreamOption {
	return func(m *StreamManager) {
		m.metrics = metrics
	}
}

// WithStreamNow overrides the clock, for tests.
func WithStreamNow(now func() time.Time) StreamOption {
	return func(m *StreamManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithReplyTo threads outbound messages onto an existing platform message.
func WithReplyTo(replyTo string) StreamOption {
	return func(m *StreamManager) {
		m.replyTo = replyTo
	}
}

// NewStreamManager builds a bridge for one conversation. The edit
// capability is detected here, once; afterwards the manager dispatches on
// the resolved mode without further type inspection.
func NewStreamManager(adapter Adapter, channelID string, behavior StreamingBehavior, opts ...StreamOption) *StreamManager {
	m := &StreamManager{
		adapter:   adapter,
		behavior:  behavior,
		channelID: channelID,
		logger:    slog.Default().With("component", "stream"),
		now:       time.Now,
	}

	editor, canEdit := adapter.(EditableAdapter)
	switch {
	case behavior.Mode == StreamingNone:
		m.mode = StreamingNone
	case behavior.Mode == StreamingEdit && behavior.SupportsEdit && canEdit:
		m.mode = StreamingEdit
		m.editor = editor
	default:
		m.mode = StreamingResend
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode reports the resolved streaming strategy.
func (m *StreamManager) Mode() StreamingMode {
	return m.mode
}

// OnEvent consumes one agent event. Text deltas stream or buffer according
// to the mode; complete, error, and aborted events finalize the
// conversation. Events arriving after Stop produce no outbound I/O.
func (m *StreamManager) OnEvent(ctx context.Context, event *models.AgentEvent) error {
	if event == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.mode == StreamingNone {
		return nil
	}

	switch event.Type {
	case models.EventText:
		if event.Text == nil || event.Text.Delta == "" {
			return nil
		}
		return m.onText(ctx, event.Text.Delta)
	case models.EventComplete:
		if event.Complete == nil {
			return nil
		}
		return m.onComplete(ctx, event.Complete.Answer)
	case models.EventError:
		message := "the assistant hit an error and stopped"
		if event.Error != nil && event.Error.Message != "" {
			message = "error: " + event.Error.Message
		}
		return m.onFinalNotice(ctx, message)
	case models.EventAborted:
		reason := ""
		if event.Aborted != nil {
			reason = event.Aborted.Reason
		}
		m.logger.Debug("run aborted, stream left as-is", "channel", m.channelID, "reason", reason)
		return nil
	}
	return nil
}

// onText handles one streamed delta. Caller holds the mutex.
func (m *StreamManager) onText(ctx context.Context, delta string) error {
	m.accumulated += delta
	if m.mode != StreamingEdit || m.editFailed {
		return nil
	}

	if m.messageID == "" {
		res, err := m.adapter.Send(ctx, m.channelID, models.OutboundMessage{
			Text:    m.accumulated,
			ReplyTo: m.replyTo,
		})
		if err != nil {
			m.editFailed = true
			m.logger.Warn("initial streaming send failed, buffering until complete", "channel", m.channelID, "error", err)
			return fmt.Errorf("streaming send: %w", err)
		}
		m.messageID = res.MessageID
		m.lastEdit = m.now()
		m.recordDelivery("send")
		return nil
	}

	if m.behavior.UpdateInterval > 0 && m.now().Sub(m.lastEdit) < m.behavior.UpdateInterval {
		return nil
	}
	if err := m.editor.EditMessage(ctx, m.channelID, m.messageID, m.accumulated); err != nil {
		m.editFailed = true
		m.logger.Warn("streaming edit failed, falling back to resend", "channel", m.channelID, "error", err)
		return fmt.Errorf("streaming edit: %w", err)
	}
	m.lastEdit = m.now()
	m.recordDelivery("edit")
	return nil
}

// onComplete delivers the full answer. Caller holds the mutex.
func (m *StreamManager) onComplete(ctx context.Context, answer string) error {
	if answer == "" {
		answer = m.accumulated
	}
	if answer == "" {
		return nil
	}

	if m.mode == StreamingEdit && m.messageID != "" && !m.editFailed {
		err := m.editor.EditMessage(ctx, m.channelID, m.messageID, answer)
		if err == nil {
			m.recordDelivery("edit")
			return nil
		}
		m.logger.Warn("final edit failed, resending answer", "channel", m.channelID, "error", err)
	}
	return m.sendChunks(ctx, answer)
}

// onFinalNotice sends a short terminal notice, bypassing any streaming
// message. Caller holds the mutex.
func (m *StreamManager) onFinalNotice(ctx context.Context, text string) error {
	return m.sendChunks(ctx, text)
}

func (m *StreamManager) sendChunks(ctx context.Context, text string) error {
	for _, chunk := range SplitMessage(text, m.behavior.MaxMessageLength) {
		res, err := m.adapter.Send(ctx, m.channelID, models.OutboundMessage{
			Text:    chunk,
			ReplyTo: m.replyTo,
		})
		if err != nil {
			return fmt.Errorf("send to %s: %w", m.channelID, err)
		}
		if m.messageID == "" {
			m.messageID = res.MessageID
		}
		m.recordDelivery("send")
	}
	return nil
}

// Stop detaches the bridge. Idempotent; subsequent events are ignored.
func (m *StreamManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// Stopped reports whether Stop has been called.
func (m *StreamManager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *StreamManager) recordDelivery(mode string) {
	if m.metrics != nil {
		m.metrics.RecordStreamDelivery(string(m.adapter.Type()), mode)
	}
}
