package slack

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/aide/internal/channels"
	"github.com/haasonsaas/aide/pkg/models"
)

type fakeAPI struct {
	authErr     error
	postErr     error
	updateErr   error
	postChans   []string
	updateChans []string
	updateTS    []string
	nextTS      int
}

func (f *fakeAPI) AuthTestContext(_ context.Context) (*slack.AuthTestResponse, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &slack.AuthTestResponse{UserID: "UBOT"}, nil
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.postChans = append(f.postChans, channelID)
	f.nextTS++
	return channelID, "1700000000.00000" + strconv.Itoa(f.nextTS), nil
}

func (f *fakeAPI) UpdateMessageContext(_ context.Context, channelID, timestamp string, _ ...slack.MsgOption) (string, string, string, error) {
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	f.updateChans = append(f.updateChans, channelID)
	f.updateTS = append(f.updateTS, timestamp)
	return channelID, timestamp, "", nil
}

type fakeSocket struct {
	acks []socketmode.Request
}

func (f *fakeSocket) RunContext(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSocket) Ack(req socketmode.Request, _ ...interface{}) {
	f.acks = append(f.acks, req)
}

func newTestAdapter(api slackAPI, events <-chan socketmode.Event) (*Adapter, *fakeSocket) {
	socket := &fakeSocket{}
	a := newWithClients(Config{
		BotToken: "xoxb-test",
		AppToken: "xapp-test",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, api, socket, events)
	return a, socket
}

func messageEvent(ev *slackevents.MessageEvent) socketmode.Event {
	return socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Type: "message",
				Data: ev,
			},
		},
		Request: &socketmode.Request{EnvelopeID: "env-1"},
	}
}

func TestStartStopLifecycle(t *testing.T) {
	events := make(chan socketmode.Event)
	a, _ := newTestAdapter(&fakeAPI{}, events)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Status().Connected {
		t.Error("expected connected after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Status().Connected {
		t.Error("expected disconnected after Stop")
	}
	if _, ok := <-a.Messages(); ok {
		t.Error("messages channel still open after Stop")
	}
	// Second Stop is a no-op.
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStartPropagatesAuthFailure(t *testing.T) {
	authErr := errors.New("invalid_auth")
	a, _ := newTestAdapter(&fakeAPI{authErr: authErr}, make(chan socketmode.Event))

	err := a.Start(context.Background())
	if !errors.Is(err, authErr) {
		t.Fatalf("error = %v, want wrapped %v", err, authErr)
	}
	if a.Status().Connected {
		t.Error("expected disconnected status")
	}
}

func TestSendReportsFirstTimestamp(t *testing.T) {
	api := &fakeAPI{}
	a, _ := newTestAdapter(api, make(chan socketmode.Event))
	a.chunker = channels.NewChunker(10)

	result, err := a.Send(context.Background(), "C123", models.OutboundMessage{Text: "aaaa bbbb cccc dddd"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.postChans) < 2 {
		t.Fatalf("got %d posts, want at least 2", len(api.postChans))
	}
	if result.MessageID != "1700000000.000001" {
		t.Errorf("MessageID = %q, want first timestamp", result.MessageID)
	}
	for _, ch := range api.postChans {
		if ch != "C123" {
			t.Errorf("post went to %q, want C123", ch)
		}
	}
}

func TestSendFailureUpdatesStatus(t *testing.T) {
	postErr := errors.New("channel_not_found")
	a, _ := newTestAdapter(&fakeAPI{postErr: postErr}, make(chan socketmode.Event))

	_, err := a.Send(context.Background(), "C404", models.OutboundMessage{Text: "hi"})
	if !errors.Is(err, postErr) {
		t.Fatalf("error = %v, want wrapped %v", err, postErr)
	}
	if a.Status().Error == "" {
		t.Error("expected failure recorded in status")
	}
}

func TestEditMessage(t *testing.T) {
	api := &fakeAPI{}
	a, _ := newTestAdapter(api, make(chan socketmode.Event))

	if err := a.EditMessage(context.Background(), "C123", "1700000000.000042", "updated"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if len(api.updateTS) != 1 || api.updateTS[0] != "1700000000.000042" {
		t.Errorf("updates = %v, want the original timestamp", api.updateTS)
	}
}

func TestEventLoopNormalizesMessages(t *testing.T) {
	events := make(chan socketmode.Event, 4)
	a, socket := newTestAdapter(&fakeAPI{}, events)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	}()

	events <- messageEvent(&slackevents.MessageEvent{
		User:            "U777",
		Text:            "<@UBOT> hello there",
		Channel:         "C123",
		TimeStamp:       "1700000000.000100",
		ThreadTimeStamp: "1700000000.000050",
	})

	select {
	case got := <-a.Messages():
		if got.ID != "1700000000.000100" {
			t.Errorf("ID = %q, want the slack timestamp", got.ID)
		}
		if got.Text != "hello there" {
			t.Errorf("Text = %q, want mention stripped", got.Text)
		}
		if got.From.UserID != "U777" || got.From.GroupID != "C123" {
			t.Errorf("From = %+v", got.From)
		}
		if got.From.ThreadID != "1700000000.000050" || got.ReplyTo != "1700000000.000050" {
			t.Errorf("thread fields = %q/%q", got.From.ThreadID, got.ReplyTo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message delivered")
	}

	if len(socket.acks) == 0 {
		t.Error("event was not acked")
	}
}

func TestEventLoopSkipsBotAndSubtypeMessages(t *testing.T) {
	a, _ := newTestAdapter(&fakeAPI{}, make(chan socketmode.Event))
	a.botUserID = "UBOT"

	a.handleEventsAPI(messageEvent(&slackevents.MessageEvent{
		BotID: "B1", User: "U1", Text: "from a bot", Channel: "C1", TimeStamp: "1.000001",
	}))
	a.handleEventsAPI(messageEvent(&slackevents.MessageEvent{
		SubType: "message_changed", User: "U1", Text: "edited", Channel: "C1", TimeStamp: "1.000002",
	}))
	a.handleEventsAPI(messageEvent(&slackevents.MessageEvent{
		User: "UBOT", Text: "own echo", Channel: "C1", TimeStamp: "1.000003",
	}))

	if got := len(a.messages); got != 0 {
		t.Errorf("buffered = %d, want 0", got)
	}
}

func TestNormalizeMessageDM(t *testing.T) {
	got := normalizeMessage("U9", "hi", "D555", "1700000000.000007", "")
	if got.From.GroupID != "" {
		t.Errorf("GroupID = %q, want empty for a DM", got.From.GroupID)
	}
	if got.From.ThreadID != "" || got.ReplyTo != "" {
		t.Errorf("thread fields set for non-thread message: %+v", got)
	}
}

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@UBOT> hello", "hello"},
		{"hello <@UBOT>", "hello"},
		{"a <@U1> b <@U2> c", "a  b  c"},
		{"no mentions", "no mentions"},
		{"<@broken", "<@broken"},
	}
	for _, tt := range tests {
		if got := stripMentions(tt.in); got != tt.want {
			t.Errorf("stripMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got := parseTimestamp("1700000000.123456")
	want := time.Unix(1700000000, 123456000)
	if !got.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", got, want)
	}
}
