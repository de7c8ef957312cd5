// Package slack is a thin channels.Adapter over the slack-go SDK using
// Socket Mode for inbound events.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

// slackAPI is the slice of the Web API the adapter calls. *slack.Client
// satisfies it; tests substitute a fake.
type slackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// socketRunner is the Socket Mode surface the adapter drives.
// *socketmode.Client satisfies it.
type socketRunner interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
}

// Config holds the Slack adapter settings.
type Config struct {
	// BotToken is the xoxb- token for Web API calls.
	BotToken string
	// AppToken is the xapp- token for Socket Mode.
	AppToken string
	Logger   *slog.Logger
}

// Adapter implements channels.Adapter and channels.EditableAdapter for
// Slack. Message ids are Slack timestamps.
type Adapter struct {
	api      slackAPI
	socket   socketRunner
	events   <-chan socketmode.Event
	logger   *slog.Logger
	chunker  *channels.Chunker
	messages chan *models.InboundMessage

	mu        sync.Mutex
	connected bool
	lastErr   string
	botUserID string

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var (
	_ channels.Adapter         = (*Adapter)(nil)
	_ channels.EditableAdapter = (*Adapter)(nil)
)

// New creates a Slack adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: bot token and app token are required")
	}
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socketClient := socketmode.New(client)
	return newWithClients(cfg, client, socketClient, socketClient.Events), nil
}

func newWithClients(cfg Config, api slackAPI, socket socketRunner, events <-chan socketmode.Event) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	behavior := channels.BehaviorFor(models.ChannelSlack)
	return &Adapter{
		api:      api,
		socket:   socket,
		events:   events,
		logger:   logger.With("component", "slack"),
		chunker:  channels.NewChunker(behavior.MaxMessageLength),
		messages: make(chan *models.InboundMessage, 64),
	}
}

// Start authenticates, then runs the Socket Mode connection and event
// loop in the background.
func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		a.setError(err)
		return fmt.Errorf("slack: auth test: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.botUserID = auth.UserID
	a.cancel = cancel
	a.connected = true
	a.lastErr = ""
	a.mu.Unlock()

	a.wg.Add(1)
	go a.handleEvents(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socket.RunContext(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.setError(err)
			a.logger.Error("socket mode run failed", "error", err)
		}
	}()

	a.logger.Info("slack adapter started", "bot_user_id", auth.UserID)
	return nil
}

// Stop ends the event loop and closes the inbound stream once the loop
// has drained.
func (a *Adapter) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		a.connected = false
		a.mu.Unlock()

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			close(a.messages)
			a.logger.Info("slack adapter stopped")
		case <-ctx.Done():
			// The stream stays open rather than racing a late event
			// against close.
			a.logger.Warn("slack event loop did not stop in time")
		}
	})
	return nil
}

// Send delivers text to a channel, splitting anything over the platform
// limit. The reported id is the timestamp of the first message.
func (a *Adapter) Send(ctx context.Context, channelID string, msg models.OutboundMessage) (models.SendResult, error) {
	var firstTS string
	for _, chunk := range a.chunker.Chunk(msg.Text) {
		options := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if msg.ReplyTo != "" {
			options = append(options, slack.MsgOptionTS(msg.ReplyTo))
		}
		_, ts, err := a.api.PostMessageContext(ctx, channelID, options...)
		if err != nil {
			a.setError(err)
			return models.SendResult{Error: err.Error()}, fmt.Errorf("slack: send: %w", err)
		}
		if firstTS == "" {
			firstTS = ts
		}
	}
	return models.SendResult{Success: true, MessageID: firstTS}, nil
}

// EditMessage rewrites a previously sent message in place.
func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	_, _, _, err := a.api.UpdateMessageContext(ctx, channelID, messageID, slack.MsgOptionText(content, false))
	if err != nil {
		a.setError(err)
		return fmt.Errorf("slack: edit: %w", err)
	}
	return nil
}

// Messages returns the normalized inbound stream.
func (a *Adapter) Messages() <-chan *models.InboundMessage {
	return a.messages
}

// Type identifies the platform.
func (a *Adapter) Type() models.ChannelType {
	return models.ChannelSlack
}

// Status reports the connection state.
func (a *Adapter) Status() channels.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return channels.Status{Connected: a.connected, Error: a.lastErr}
}

func (a *Adapter) handleEvents(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnected:
				a.logger.Info("socket mode connected")
			case socketmode.EventTypeConnectionError:
				a.logger.Warn("socket mode connection error", "data", event.Data)
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		if event.Request != nil {
			a.socket.Ack(*event.Request)
		}
		return
	}
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" || ev.User == a.botUser() {
			return
		}
		a.deliver(normalizeMessage(ev.User, ev.Text, ev.Channel, ev.TimeStamp, ev.ThreadTimeStamp))
	case *slackevents.AppMentionEvent:
		if ev.User == a.botUser() {
			return
		}
		a.deliver(normalizeMessage(ev.User, ev.Text, ev.Channel, ev.TimeStamp, ev.ThreadTimeStamp))
	}
}

func (a *Adapter) deliver(inbound *models.InboundMessage) {
	select {
	case a.messages <- inbound:
	default:
		a.logger.Warn("inbound buffer full, dropping slack message", "channel_id", inbound.ChannelID)
	}
}

func (a *Adapter) botUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// normalizeMessage maps a Slack event into the core inbound format.
// The message id is the Slack timestamp.
func normalizeMessage(user, text, channel, ts, threadTS string) *models.InboundMessage {
	inbound := &models.InboundMessage{
		ID:        ts,
		ChannelID: channel,
		From: models.Sender{
			ChannelID: string(models.ChannelSlack),
			UserID:    user,
		},
		Text:      stripMentions(text),
		Timestamp: parseTimestamp(ts),
	}
	// DM channel ids start with D; everything else is a shared channel.
	if !strings.HasPrefix(channel, "D") {
		inbound.From.GroupID = channel
	}
	if threadTS != "" {
		inbound.From.ThreadID = threadTS
		inbound.ReplyTo = threadTS
	}
	return inbound
}

// stripMentions removes <@USERID> tokens so the agent sees clean text.
func stripMentions(text string) string {
	for {
		start := strings.Index(text, "<@")
		if start == -1 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	return strings.TrimSpace(text)
}

// parseTimestamp converts a Slack "seconds.microseconds" timestamp.
func parseTimestamp(ts string) time.Time {
	var sec, usec int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &usec); err != nil {
		return time.Now()
	}
	return time.Unix(sec, usec*1000)
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
}
