package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

func inbound(channel, user, group, thread string) *models.InboundMessage {
	return &models.InboundMessage{
		ChannelID: channel,
		From: models.Sender{
			ChannelID: channel,
			UserID:    user,
			GroupID:   group,
			ThreadID:  thread,
		},
		Text: "hello",
	}
}

func TestRouteKey(t *testing.T) {
	tests := []struct {
		name string
		msg  *models.InboundMessage
		want string
	}{
		{
			name: "group thread",
			msg:  inbound("telegram", "u1", "g42", "t7"),
			want: "telegram:group:g42:thread:t7",
		},
		{
			name: "group without thread",
			msg:  inbound("telegram", "u1", "g42", ""),
			want: "telegram:group:g42:user:u1",
		},
		{
			name: "direct message",
			msg:  inbound("discord", "u9", "", ""),
			want: "discord:u9",
		},
		{
			name: "channel only on sender",
			msg: &models.InboundMessage{
				From: models.Sender{ChannelID: "slack", UserID: "u3"},
			},
			want: "slack:u3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RouteKey(tt.msg)
			if err != nil {
				t.Fatalf("RouteKey: %v", err)
			}
			if got != tt.want {
				t.Errorf("RouteKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteKeyMissingChannel(t *testing.T) {
	_, err := RouteKey(&models.InboundMessage{From: models.Sender{UserID: "u1"}})
	if !errors.Is(err, ErrMissingChannel) {
		t.Fatalf("expected ErrMissingChannel, got %v", err)
	}
}

func newTestRouter() (*Router, *Manager) {
	m := newTestManager(nil, newFakeClock())
	r := NewRouter(m, Template{EngineID: "default", Provider: "anthropic", Model: "claude-sonnet-4"}, nil)
	return r, m
}

func TestRouterGroupThreadSharesSession(t *testing.T) {
	r, _ := newTestRouter()
	ctx := context.Background()

	first, err := r.Resolve(ctx, inbound("telegram", "u1", "g42", "t7"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, inbound("telegram", "u2", "g42", "t7"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	third, err := r.Resolve(ctx, inbound("telegram", "u1", "g42", "t7"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if second.ID() != first.ID() || third.ID() != first.ID() {
		t.Errorf("thread messages split sessions: %q, %q, %q", first.ID(), second.ID(), third.ID())
	}

	// Same group, no thread: a distinct conversation.
	noThread, err := r.Resolve(ctx, inbound("telegram", "u1", "g42", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if noThread.ID() == first.ID() {
		t.Error("group message without thread joined the thread session")
	}
}

func TestRouterDirectMessagesPerUser(t *testing.T) {
	r, _ := newTestRouter()
	ctx := context.Background()

	a, err := r.Resolve(ctx, inbound("discord", "u1", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := r.Resolve(ctx, inbound("discord", "u2", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.ID() == b.ID() {
		t.Error("different users share a direct session")
	}

	again, err := r.Resolve(ctx, inbound("discord", "u1", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again.ID() != a.ID() {
		t.Error("repeat direct message did not reuse the session")
	}
}

func TestRouterAppliesTemplate(t *testing.T) {
	r, _ := newTestRouter()

	sess, err := r.Resolve(context.Background(), inbound("telegram", "u1", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	snap := sess.Snapshot()
	if snap.EngineID != "default" {
		t.Errorf("EngineID = %q, want default", snap.EngineID)
	}
	if snap.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", snap.Provider)
	}
	if snap.ChannelID != "telegram" {
		t.Errorf("ChannelID = %q, want telegram", snap.ChannelID)
	}
	if snap.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", snap.UserID)
	}
}

func TestRouterMissingChannel(t *testing.T) {
	r, _ := newTestRouter()
	_, err := r.Resolve(context.Background(), &models.InboundMessage{From: models.Sender{UserID: "u1"}})
	if !errors.Is(err, ErrMissingChannel) {
		t.Fatalf("expected ErrMissingChannel, got %v", err)
	}
}

func TestRouterNewSessionAfterEnd(t *testing.T) {
	r, m := newTestRouter()
	ctx := context.Background()

	before, err := r.Resolve(ctx, inbound("telegram", "u1", "g42", "t7"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := m.End(ctx, before.ID(), models.SessionCompleted); err != nil {
		t.Fatalf("End: %v", err)
	}

	after, err := r.Resolve(ctx, inbound("telegram", "u1", "g42", "t7"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if after.ID() == before.ID() {
		t.Error("ended session was reused")
	}
}

func TestRouterEvictStale(t *testing.T) {
	r, m := newTestRouter()
	ctx := context.Background()

	kept, err := r.Resolve(ctx, inbound("telegram", "u1", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	gone, err := r.Resolve(ctx, inbound("telegram", "u2", "", ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := m.End(ctx, gone.ID(), models.SessionCompleted); err != nil {
		t.Fatalf("End: %v", err)
	}

	if removed := r.EvictStale(); removed != 1 {
		t.Errorf("EvictStale() = %d, want 1", removed)
	}
	if r.Routes() != 1 {
		t.Errorf("Routes() = %d, want 1", r.Routes())
	}
	if _, ok := m.Get(kept.ID()); !ok {
		t.Error("surviving session was evicted")
	}
}
