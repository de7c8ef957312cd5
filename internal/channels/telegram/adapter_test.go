package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

type fakeBotClient struct {
	sendParams []*bot.SendMessageParams
	editParams []*bot.EditMessageTextParams
	sendErr    error
	editErr    error
	nextID     int
}

func (f *fakeBotClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sendParams = append(f.sendParams, params)
	f.nextID++
	return &tgmodels.Message{ID: f.nextID}, nil
}

func (f *fakeBotClient) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*tgmodels.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.editParams = append(f.editParams, params)
	return &tgmodels.Message{ID: params.MessageID}, nil
}

func newTestAdapter(client botClient) *Adapter {
	return newWithClient(Config{
		Token:  "test-token",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, client)
}

func TestSendParsesChatID(t *testing.T) {
	client := &fakeBotClient{}
	a := newTestAdapter(client)

	result, err := a.Send(context.Background(), "12345", models.OutboundMessage{Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if result.MessageID != "1" {
		t.Errorf("MessageID = %q, want %q", result.MessageID, "1")
	}
	if len(client.sendParams) != 1 {
		t.Fatalf("got %d sends, want 1", len(client.sendParams))
	}
	if got := client.sendParams[0].ChatID; got != int64(12345) {
		t.Errorf("ChatID = %v (%T), want int64 12345", got, got)
	}
	if client.sendParams[0].Text != "hello" {
		t.Errorf("Text = %q, want %q", client.sendParams[0].Text, "hello")
	}
}

func TestSendRejectsNonNumericChatID(t *testing.T) {
	a := newTestAdapter(&fakeBotClient{})

	_, err := a.Send(context.Background(), "not-a-number", models.OutboundMessage{Text: "hi"})
	if err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
	if !strings.Contains(err.Error(), "invalid chat id") {
		t.Errorf("error = %v, want invalid chat id", err)
	}
}

func TestSendSplitsLongMessages(t *testing.T) {
	client := &fakeBotClient{}
	a := newTestAdapter(client)
	a.chunker = channels.NewChunker(10)

	result, err := a.Send(context.Background(), "42", models.OutboundMessage{Text: "aaaa bbbb cccc dddd"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(client.sendParams) < 2 {
		t.Fatalf("got %d sends, want at least 2", len(client.sendParams))
	}
	// The reported id belongs to the first chunk.
	if result.MessageID != "1" {
		t.Errorf("MessageID = %q, want %q", result.MessageID, "1")
	}
	for i, params := range client.sendParams {
		if len(params.Text) > 10 {
			t.Errorf("chunk %d has %d chars, limit 10", i, len(params.Text))
		}
	}
}

func TestSendSetsReplyParameters(t *testing.T) {
	client := &fakeBotClient{}
	a := newTestAdapter(client)

	_, err := a.Send(context.Background(), "42", models.OutboundMessage{Text: "hi", ReplyTo: "99"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	rp := client.sendParams[0].ReplyParameters
	if rp == nil || rp.MessageID != 99 {
		t.Errorf("ReplyParameters = %+v, want MessageID 99", rp)
	}
}

func TestSendFailureUpdatesStatus(t *testing.T) {
	sendErr := errors.New("telegram is down")
	a := newTestAdapter(&fakeBotClient{sendErr: sendErr})

	_, err := a.Send(context.Background(), "42", models.OutboundMessage{Text: "hi"})
	if !errors.Is(err, sendErr) {
		t.Fatalf("error = %v, want wrapped %v", err, sendErr)
	}
	if got := a.Status().Error; !strings.Contains(got, "telegram is down") {
		t.Errorf("Status().Error = %q, want send failure recorded", got)
	}
}

func TestEditMessage(t *testing.T) {
	client := &fakeBotClient{}
	a := newTestAdapter(client)

	if err := a.EditMessage(context.Background(), "42", "7", "updated"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if len(client.editParams) != 1 {
		t.Fatalf("got %d edits, want 1", len(client.editParams))
	}
	edit := client.editParams[0]
	if edit.ChatID != int64(42) || edit.MessageID != 7 || edit.Text != "updated" {
		t.Errorf("edit = %+v, want chat 42 message 7 text updated", edit)
	}
}

func TestEditMessageRejectsBadIDs(t *testing.T) {
	a := newTestAdapter(&fakeBotClient{})

	if err := a.EditMessage(context.Background(), "abc", "7", "x"); err == nil {
		t.Error("expected error for bad chat id")
	}
	if err := a.EditMessage(context.Background(), "42", "abc", "x"); err == nil {
		t.Error("expected error for bad message id")
	}
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgmodels.Message
		want models.InboundMessage
	}{
		{
			name: "private chat",
			msg: &tgmodels.Message{
				ID:   10,
				From: &tgmodels.User{ID: 777},
				Chat: tgmodels.Chat{ID: 555, Type: "private"},
				Text: "hello",
				Date: 1700000000,
			},
			want: models.InboundMessage{
				ID:        "10",
				ChannelID: "555",
				From: models.Sender{
					ChannelID: "telegram",
					UserID:    "777",
				},
				Text: "hello",
			},
		},
		{
			name: "group chat with thread and reply",
			msg: &tgmodels.Message{
				ID:              11,
				From:            &tgmodels.User{ID: 777},
				Chat:            tgmodels.Chat{ID: -100123, Type: "supergroup"},
				Text:            "in a group",
				Date:            1700000001,
				MessageThreadID: 5,
				ReplyToMessage:  &tgmodels.Message{ID: 9},
			},
			want: models.InboundMessage{
				ID:        "11",
				ChannelID: "-100123",
				From: models.Sender{
					ChannelID: "telegram",
					UserID:    "777",
					GroupID:   "-100123",
					ThreadID:  "5",
				},
				Text:    "in a group",
				ReplyTo: "9",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeMessage(tt.msg)
			if got.ID != tt.want.ID {
				t.Errorf("ID = %q, want %q", got.ID, tt.want.ID)
			}
			if got.ChannelID != tt.want.ChannelID {
				t.Errorf("ChannelID = %q, want %q", got.ChannelID, tt.want.ChannelID)
			}
			if got.From != tt.want.From {
				t.Errorf("From = %+v, want %+v", got.From, tt.want.From)
			}
			if got.Text != tt.want.Text {
				t.Errorf("Text = %q, want %q", got.Text, tt.want.Text)
			}
			if got.ReplyTo != tt.want.ReplyTo {
				t.Errorf("ReplyTo = %q, want %q", got.ReplyTo, tt.want.ReplyTo)
			}
			if got.Timestamp.Unix() != int64(tt.msg.Date) {
				t.Errorf("Timestamp = %v, want unix %d", got.Timestamp, tt.msg.Date)
			}
		})
	}
}

func TestHandleUpdateDropsWhenBufferFull(t *testing.T) {
	a := newTestAdapter(&fakeBotClient{})
	a.messages = make(chan *models.InboundMessage, 1)

	update := func(id int) *tgmodels.Update {
		return &tgmodels.Update{Message: &tgmodels.Message{
			ID:   id,
			From: &tgmodels.User{ID: 1},
			Chat: tgmodels.Chat{ID: 2, Type: "private"},
			Text: "x",
		}}
	}
	a.handleUpdate(context.Background(), nil, update(1))
	a.handleUpdate(context.Background(), nil, update(2))

	if got := len(a.messages); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	first := <-a.messages
	if first.ID != "1" {
		t.Errorf("kept message ID = %q, want %q", first.ID, "1")
	}
}

func TestHandleUpdateIgnoresNonMessages(t *testing.T) {
	a := newTestAdapter(&fakeBotClient{})

	a.handleUpdate(context.Background(), nil, nil)
	a.handleUpdate(context.Background(), nil, &tgmodels.Update{})
	a.handleUpdate(context.Background(), nil, &tgmodels.Update{Message: &tgmodels.Message{ID: 1}})

	if got := len(a.messages); got != 0 {
		t.Errorf("buffered = %d, want 0", got)
	}
}

func TestAdapterType(t *testing.T) {
	a := newTestAdapter(&fakeBotClient{})
	if got := a.Type(); got != models.ChannelTelegram {
		t.Errorf("Type() = %v, want %v", got, models.ChannelTelegram)
	}
}
