package discord

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

type fakeSession struct {
	opened   bool
	closed   bool
	handlers []interface{}
	sends    []string
	sendChan []string
	edits    []string
	openErr  error
	sendErr  error
	editErr  error
	nextID   int
}

func (f *fakeSession) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) AddHandler(handler interface{}) func() {
	f.handlers = append(f.handlers, handler)
	return func() {}
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sends = append(f.sends, content)
	f.sendChan = append(f.sendChan, channelID)
	f.nextID++
	return &discordgo.Message{ID: strconv.Itoa(f.nextID)}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, content)
	return &discordgo.Message{ID: messageID}, nil
}

func newTestAdapter(session discordSession) *Adapter {
	return newWithSession(Config{
		Token:  "test-token",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, session)
}

func TestStartOpensSessionAndRegistersHandler(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(session)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !session.opened {
		t.Error("session not opened")
	}
	if len(session.handlers) != 1 {
		t.Errorf("got %d handlers, want 1", len(session.handlers))
	}
	if !a.Status().Connected {
		t.Error("expected connected status")
	}
}

func TestStartPropagatesOpenFailure(t *testing.T) {
	openErr := errors.New("gateway refused")
	a := newTestAdapter(&fakeSession{openErr: openErr})

	err := a.Start(context.Background())
	if !errors.Is(err, openErr) {
		t.Fatalf("error = %v, want wrapped %v", err, openErr)
	}
	if a.Status().Connected {
		t.Error("expected disconnected status")
	}
}

func TestStopClosesSessionAndStream(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(session)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !session.closed {
		t.Error("session not closed")
	}
	if _, ok := <-a.Messages(); ok {
		t.Error("messages channel still open after Stop")
	}
	// Second Stop is a no-op.
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSendChunksAndReportsFirstID(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(session)
	a.chunker = channels.NewChunker(10)

	result, err := a.Send(context.Background(), "chan-1", models.OutboundMessage{Text: "aaaa bbbb cccc dddd"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(session.sends) < 2 {
		t.Fatalf("got %d sends, want at least 2", len(session.sends))
	}
	if result.MessageID != "1" {
		t.Errorf("MessageID = %q, want %q", result.MessageID, "1")
	}
	for _, ch := range session.sendChan {
		if ch != "chan-1" {
			t.Errorf("send went to %q, want chan-1", ch)
		}
	}
}

func TestSendFailureUpdatesStatus(t *testing.T) {
	sendErr := errors.New("missing permissions")
	a := newTestAdapter(&fakeSession{sendErr: sendErr})

	_, err := a.Send(context.Background(), "chan-1", models.OutboundMessage{Text: "hi"})
	if !errors.Is(err, sendErr) {
		t.Fatalf("error = %v, want wrapped %v", err, sendErr)
	}
	if a.Status().Error == "" {
		t.Error("expected failure recorded in status")
	}
}

func TestEditMessage(t *testing.T) {
	session := &fakeSession{}
	a := newTestAdapter(session)

	if err := a.EditMessage(context.Background(), "chan-1", "msg-1", "updated"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if len(session.edits) != 1 || session.edits[0] != "updated" {
		t.Errorf("edits = %v, want [updated]", session.edits)
	}
}

func TestHandleMessageCreateNormalizes(t *testing.T) {
	a := newTestAdapter(&fakeSession{})
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "msg-7",
		ChannelID: "chan-9",
		GuildID:   "guild-3",
		Author:    &discordgo.User{ID: "user-5"},
		Content:   "hello there",
		Timestamp: ts,
		MessageReference: &discordgo.MessageReference{
			MessageID: "msg-2",
		},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "att-1", ContentType: "image/png", URL: "https://cdn/att.png", Filename: "att.png", Size: 512},
		},
	}})

	select {
	case got := <-a.Messages():
		if got.ID != "msg-7" || got.ChannelID != "chan-9" || got.Text != "hello there" {
			t.Errorf("inbound = %+v", got)
		}
		if got.From.UserID != "user-5" || got.From.GroupID != "guild-3" {
			t.Errorf("From = %+v", got.From)
		}
		if got.ReplyTo != "msg-2" {
			t.Errorf("ReplyTo = %q, want msg-2", got.ReplyTo)
		}
		if !got.Timestamp.Equal(ts) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
		}
		if len(got.Attachments) != 1 || got.Attachments[0].Type != "image" {
			t.Errorf("Attachments = %+v", got.Attachments)
		}
	default:
		t.Fatal("no inbound message buffered")
	}
}

func TestHandleMessageCreateSkipsBots(t *testing.T) {
	a := newTestAdapter(&fakeSession{})

	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:     "msg-1",
		Author: &discordgo.User{ID: "bot-1", Bot: true},
	}})
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{ID: "msg-2"}})

	if got := len(a.messages); got != 0 {
		t.Errorf("buffered = %d, want 0", got)
	}
}

func TestAttachmentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/png", "image"},
		{"audio/ogg", "audio"},
		{"video/mp4", "video"},
		{"application/pdf", "document"},
		{"", "document"},
	}
	for _, tt := range tests {
		if got := attachmentType(tt.contentType); got != tt.want {
			t.Errorf("attachmentType(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestAdapterType(t *testing.T) {
	a := newTestAdapter(&fakeSession{})
	if got := a.Type(); got != models.ChannelDiscord {
		t.Errorf("Type() = %v, want %v", got, models.ChannelDiscord)
	}
}
