// Package discord is a thin channels.Adapter over discordgo's gateway
// session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

// discordSession allows mocking the Discord session in tests.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Config holds the Discord adapter settings.
type Config struct {
	// Token is the bot token from the Discord developer portal.
	Token  string
	Logger *slog.Logger
}

// Adapter implements channels.Adapter and channels.EditableAdapter for
// Discord.
type Adapter struct {
	session  discordSession
	logger   *slog.Logger
	chunker  *channels.Chunker
	messages chan *models.InboundMessage

	mu        sync.Mutex
	connected bool
	lastErr   string
	stopOnce  sync.Once
}

var (
	_ channels.Adapter         = (*Adapter)(nil)
	_ channels.EditableAdapter = (*Adapter)(nil)
)

// New creates a Discord adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return newWithSession(cfg, dg), nil
}

func newWithSession(cfg Config, session discordSession) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	behavior := channels.BehaviorFor(models.ChannelDiscord)
	return &Adapter{
		session:  session,
		logger:   logger.With("component", "discord"),
		chunker:  channels.NewChunker(behavior.MaxMessageLength),
		messages: make(chan *models.InboundMessage, 64),
	}
}

// Start opens the gateway connection and registers the message handler.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessageCreate)
	if err := a.session.Open(); err != nil {
		a.setError(err)
		return fmt.Errorf("discord: open session: %w", err)
	}

	a.mu.Lock()
	a.connected = true
	a.lastErr = ""
	a.mu.Unlock()

	a.logger.Info("discord adapter started")
	return nil
}

// Stop closes the gateway connection and the inbound stream.
func (a *Adapter) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
		if closeErr := a.session.Close(); closeErr != nil {
			err = fmt.Errorf("discord: close session: %w", closeErr)
		}
		close(a.messages)
		a.logger.Info("discord adapter stopped")
	})
	return err
}

// Send delivers text to a channel, splitting anything over the platform
// limit. The reported id is the first message sent.
func (a *Adapter) Send(ctx context.Context, channelID string, msg models.OutboundMessage) (models.SendResult, error) {
	var firstID string
	for _, chunk := range a.chunker.Chunk(msg.Text) {
		sent, err := a.session.ChannelMessageSend(channelID, chunk)
		if err != nil {
			a.setError(err)
			return models.SendResult{Error: err.Error()}, fmt.Errorf("discord: send: %w", err)
		}
		if firstID == "" {
			firstID = sent.ID
		}
	}
	return models.SendResult{Success: true, MessageID: firstID}, nil
}

// EditMessage rewrites a previously sent message in place.
func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	if _, err := a.session.ChannelMessageEdit(channelID, messageID, content); err != nil {
		a.setError(err)
		return fmt.Errorf("discord: edit: %w", err)
	}
	return nil
}

// Messages returns the normalized inbound stream.
func (a *Adapter) Messages() <-chan *models.InboundMessage {
	return a.messages
}

// Type identifies the platform.
func (a *Adapter) Type() models.ChannelType {
	return models.ChannelDiscord
}

// Status reports the connection state.
func (a *Adapter) Status() channels.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return channels.Status{Connected: a.connected, Error: a.lastErr}
}

func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Bot messages (including our own) never enter the inbound stream.
	if m.Author == nil || m.Author.Bot {
		return
	}
	inbound := normalizeMessage(m.Message)
	select {
	case a.messages <- inbound:
	default:
		a.logger.Warn("inbound buffer full, dropping discord message", "channel_id", m.ChannelID)
	}
}

// normalizeMessage maps a Discord message into the core inbound format.
func normalizeMessage(m *discordgo.Message) *models.InboundMessage {
	inbound := &models.InboundMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		From: models.Sender{
			ChannelID: string(models.ChannelDiscord),
			UserID:    m.Author.ID,
			GroupID:   m.GuildID,
		},
		Text:      m.Content,
		Timestamp: m.Timestamp,
		Raw:       m,
	}
	if ref := m.MessageReference; ref != nil {
		inbound.ReplyTo = ref.MessageID
	}
	for _, att := range m.Attachments {
		inbound.Attachments = append(inbound.Attachments, models.Attachment{
			ID:       att.ID,
			Type:     attachmentType(att.ContentType),
			URL:      att.URL,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     int64(att.Size),
		})
	}
	return inbound
}

func attachmentType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "document"
	}
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
}
