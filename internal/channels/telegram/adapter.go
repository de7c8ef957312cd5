// Package telegram is a thin channels.Adapter over the go-telegram bot
// SDK: long polling for inbound updates, sendMessage and editMessageText
// for output.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

// Config holds the Telegram adapter settings.
type Config struct {
	// Token is the bot token from @BotFather.
	Token  string
	Logger *slog.Logger
}

// botClient is the slice of the SDK surface the adapter calls. *bot.Bot
// satisfies it; tests substitute a fake.
type botClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error)
}

// Adapter implements channels.Adapter and channels.EditableAdapter for
// Telegram.
type Adapter struct {
	client   botClient
	bot      *bot.Bot
	logger   *slog.Logger
	chunker  *channels.Chunker
	messages chan *models.InboundMessage

	mu        sync.Mutex
	connected bool
	lastErr   string
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

var (
	_ channels.Adapter         = (*Adapter)(nil)
	_ channels.EditableAdapter = (*Adapter)(nil)
)

// New creates a Telegram adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	b, err := bot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	a := newWithClient(cfg, b)
	a.bot = b
	return a, nil
}

func newWithClient(cfg Config, client botClient) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	behavior := channels.BehaviorFor(models.ChannelTelegram)
	return &Adapter{
		client:   client,
		logger:   logger.With("component", "telegram"),
		chunker:  channels.NewChunker(behavior.MaxMessageLength),
		messages: make(chan *models.InboundMessage, 64),
	}
}

// Start registers the update handler and begins long polling.
func (a *Adapter) Start(ctx context.Context) error {
	if a.bot == nil {
		return fmt.Errorf("telegram: %w", channels.ErrNotConnected)
	}
	runCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.cancel = cancel
	a.connected = true
	a.mu.Unlock()

	a.bot.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, a.handleUpdate)
	go a.bot.Start(runCtx)

	a.logger.Info("telegram adapter started")
	return nil
}

// Stop ends polling and closes the inbound stream.
func (a *Adapter) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		a.connected = false
		a.mu.Unlock()
		close(a.messages)
		a.logger.Info("telegram adapter stopped")
	})
	return nil
}

// Send delivers text to a chat, splitting anything over the platform
// limit. The reported id is the first message sent.
func (a *Adapter) Send(ctx context.Context, channelID string, msg models.OutboundMessage) (models.SendResult, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("telegram: invalid chat id %q: %w", channelID, err)
	}

	var firstID string
	for _, chunk := range a.chunker.Chunk(msg.Text) {
		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if msg.ReplyTo != "" {
			if replyID, err := strconv.Atoi(msg.ReplyTo); err == nil {
				params.ReplyParameters = &tgmodels.ReplyParameters{MessageID: replyID}
			}
		}
		sent, err := a.client.SendMessage(ctx, params)
		if err != nil {
			a.setError(err)
			return models.SendResult{Error: err.Error()}, fmt.Errorf("telegram: send: %w", err)
		}
		if firstID == "" {
			firstID = strconv.Itoa(sent.ID)
		}
	}
	return models.SendResult{Success: true, MessageID: firstID}, nil
}

// EditMessage rewrites a previously sent message in place.
func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", channelID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", messageID, err)
	}
	_, err = a.client.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msgID,
		Text:      content,
	})
	if err != nil {
		a.setError(err)
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

// Messages returns the normalized inbound stream.
func (a *Adapter) Messages() <-chan *models.InboundMessage {
	return a.messages
}

// Type identifies the platform.
func (a *Adapter) Type() models.ChannelType {
	return models.ChannelTelegram
}

// Status reports the connection state.
func (a *Adapter) Status() channels.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return channels.Status{Connected: a.connected, Error: a.lastErr}
}

func (a *Adapter) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return
	}
	inbound := normalizeMessage(update.Message)
	inbound.Raw = update
	select {
	case a.messages <- inbound:
	default:
		a.logger.Warn("inbound buffer full, dropping telegram update", "chat_id", inbound.ChannelID)
	}
}

// normalizeMessage maps a Telegram message into the core inbound format.
func normalizeMessage(msg *tgmodels.Message) *models.InboundMessage {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	inbound := &models.InboundMessage{
		ID:        strconv.Itoa(msg.ID),
		ChannelID: chatID,
		From: models.Sender{
			ChannelID: string(models.ChannelTelegram),
			UserID:    strconv.FormatInt(msg.From.ID, 10),
		},
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
	if string(msg.Chat.Type) != "private" {
		inbound.From.GroupID = chatID
	}
	if msg.MessageThreadID != 0 {
		inbound.From.ThreadID = strconv.Itoa(msg.MessageThreadID)
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyTo = strconv.Itoa(msg.ReplyToMessage.ID)
	}
	return inbound
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
}
