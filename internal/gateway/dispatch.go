package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/pkg/models"
)

// Control prefixes carried in inbound message text. The canvas bridge
// composes them; the dispatcher and agent consume them.
const (
	PrefixUserClick  = "[USER_CLICK]"
	PrefixFormSubmit = "[FORM_SUBMIT]"
	PrefixAbort      = "[ABORT]"
)

// maxConcurrentRuns bounds simultaneous agent runs across all sessions.
const maxConcurrentRuns = 16

// ErrDispatcherClosed is returned for messages arriving after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Runner is the slice of the agent loop the dispatcher drives. *agent.Loop
// satisfies it; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, sess *sessions.Session, userMsg models.Message) (<-chan *models.AgentEvent, error)
}

// Dispatcher routes inbound messages onto sessions and turns them into
// agent runs. A session runs one turn at a time: messages hitting a busy
// session become steering input, and the abort prefix cancels the active
// run instead of starting a new one.
type Dispatcher struct {
	router   *sessions.Router
	loop     Runner
	registry *channels.Registry
	events   *EventHub
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
	closed bool

	sem chan struct{}
	wg  sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
}

// DispatcherConfig assembles a Dispatcher.
type DispatcherConfig struct {
	Router   *sessions.Router
	Loop     Runner
	Registry *channels.Registry
	Events   *EventHub
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// NewDispatcher wires the message pump.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.Loop == nil {
		return nil, fmt.Errorf("loop is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Events
	if events == nil {
		events = NewEventHub()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		router:   cfg.Router,
		loop:     cfg.Loop,
		registry: cfg.Registry,
		events:   events,
		logger:   logger.With("component", "dispatch"),
		metrics:  cfg.Metrics,
		now:      now,
		active:   make(map[string]*activeRun),
		sem:      make(chan struct{}, maxConcurrentRuns),
	}, nil
}

// Events returns the hub carrying agent events for bridges.
func (d *Dispatcher) Events() *EventHub {
	return d.events
}

// HandleInbound resolves the message onto a session through the router
// and dispatches it.
func (d *Dispatcher) HandleInbound(ctx context.Context, msg *models.InboundMessage) error {
	if msg == nil {
		return nil
	}
	sess, err := d.router.Resolve(ctx, msg)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	return d.Dispatch(ctx, sess, msg)
}

// Dispatch applies one inbound message to a known session: abort,
// steer, or start a run. It never blocks on the run itself.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *sessions.Session, msg *models.InboundMessage) error {
	if sess == nil || msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" && len(msg.Attachments) == 0 {
		return nil
	}
	if d.metrics != nil {
		d.metrics.RecordMessage(msg.From.ChannelID, "inbound")
	}

	if strings.HasPrefix(text, PrefixAbort) {
		aborted := d.Abort(sess.ID())
		d.logger.Info("abort requested", "session_id", sess.ID(), "active", aborted)
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, busy := d.active[sess.ID()]; busy {
		d.mu.Unlock()
		if err := sess.Steering.Push(text); err != nil {
			d.logger.Warn("steering rejected", "session_id", sess.ID(), "error", err)
			return fmt.Errorf("steer session %s: %w", sess.ID(), err)
		}
		d.logger.Debug("message queued as steering", "session_id", sess.ID())
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.active[sess.ID()] = &activeRun{cancel: cancel}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.execute(runCtx, cancel, sess, msg)
	return nil
}

// Abort cancels the session's active run. It reports whether a run was
// in flight.
func (d *Dispatcher) Abort(sessionID string) bool {
	d.mu.Lock()
	run, ok := d.active[sessionID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Busy reports whether the session has a run in flight.
func (d *Dispatcher) Busy(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[sessionID]
	return ok
}

// Close stops accepting messages and waits for in-flight runs.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for _, run := range d.active {
		run.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, cancel context.CancelFunc, sess *sessions.Session, msg *models.InboundMessage) {
	defer d.wg.Done()
	defer cancel()
	defer d.clearActive(sess.ID())

	// Respect the global run cap without stalling the inbound pump.
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return
	}
	if ctx.Err() != nil {
		return
	}

	userMsg := models.Message{
		ID:        msg.ID,
		SessionID: sess.ID(),
		Channel:   models.ChannelType(msg.From.ChannelID),
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   msg.Text,
		CreatedAt: msg.Timestamp,
	}
	if len(msg.Attachments) > 0 {
		userMsg.Attachments = append(userMsg.Attachments, msg.Attachments...)
	}

	events, err := d.loop.Run(ctx, sess, userMsg)
	if err != nil {
		d.logger.Error("run failed to start", "session_id", sess.ID(), "error", err)
		return
	}

	stream := d.streamFor(msg)
	for event := range events {
		d.events.Broadcast(sess.ID(), event)
		if stream != nil {
			if err := stream.OnEvent(ctx, event); err != nil {
				d.logger.Warn("stream delivery failed",
					"session_id", sess.ID(),
					"channel", msg.From.ChannelID,
					"error", err)
			}
		}
	}
	if stream != nil {
		stream.Stop()
	}
}

// streamFor builds the outbound bridge for the message's channel. Canvas
// and cron traffic has no platform adapter; their events reach clients
// through the event hub only.
func (d *Dispatcher) streamFor(msg *models.InboundMessage) *channels.StreamManager {
	channelType := models.ChannelType(msg.From.ChannelID)
	switch channelType {
	case models.ChannelCanvas, models.ChannelCron:
		return nil
	}
	if d.registry == nil {
		return nil
	}
	adapter, ok := d.registry.Get(channelType)
	if !ok {
		d.logger.Warn("no adapter for channel", "channel", channelType)
		return nil
	}
	opts := []channels.StreamOption{
		channels.WithStreamLogger(d.logger),
		channels.WithReplyTo(msg.ID),
	}
	if d.metrics != nil {
		opts = append(opts, channels.WithStreamMetrics(d.metrics))
	}
	return channels.NewStreamManager(adapter, msg.ChannelID, channels.BehaviorFor(channelType), opts...)
}

func (d *Dispatcher) clearActive(sessionID string) {
	d.mu.Lock()
	delete(d.active, sessionID)
	d.mu.Unlock()
}
