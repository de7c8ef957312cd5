package sessions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/aide/pkg/models"
)

// ErrMissingChannel is returned when an inbound message names no channel.
var ErrMissingChannel = errors.New("inbound message has no channel id")

// Template seeds sessions the router creates for unrouted messages.
type Template struct {
	EngineID     string
	Provider     string
	Model        string
	SystemPrompt string
}

// Router maps inbound messages to sessions by composite key. Keying is
// deterministic: the same (channel, group, thread) coordinates land on the
// same session until that session ends.
type Router struct {
	mu      sync.Mutex
	routes  map[string]string
	manager *Manager

	template Template
	logger   *slog.Logger
}

// NewRouter creates a router backed by the manager.
func NewRouter(manager *Manager, template Template, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		routes:   make(map[string]string),
		manager:  manager,
		template: template,
		logger:   logger.With("component", "router"),
	}
}

// RouteKey computes the composite routing key for a message, by priority:
// thread inside a group, then user inside a group, then direct.
func RouteKey(msg *models.InboundMessage) (string, error) {
	channel := strings.TrimSpace(msg.ChannelID)
	if channel == "" {
		channel = strings.TrimSpace(msg.From.ChannelID)
	}
	if channel == "" {
		return "", ErrMissingChannel
	}

	gid := strings.TrimSpace(msg.From.GroupID)
	tid := strings.TrimSpace(msg.From.ThreadID)
	uid := strings.TrimSpace(msg.From.UserID)
	switch {
	case gid != "" && tid != "":
		return channel + ":group:" + gid + ":thread:" + tid, nil
	case gid != "":
		return channel + ":group:" + gid + ":user:" + uid, nil
	default:
		return channel + ":" + uid, nil
	}
}

// Resolve returns the session for the message, creating one from the default
// template when the key is unrouted or its session has ended. The only error
// cases are a missing channel id and session creation failure.
func (r *Router) Resolve(ctx context.Context, msg *models.InboundMessage) (*Session, error) {
	key, err := RouteKey(msg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sid, ok := r.routes[key]; ok {
		if sess, live := r.manager.Get(sid); live {
			r.manager.Touch(sid)
			return sess, nil
		}
		// Session ended externally; the route is stale.
		delete(r.routes, key)
	}

	channel := msg.ChannelID
	if channel == "" {
		channel = msg.From.ChannelID
	}
	sess, err := r.manager.Create(ctx, models.Session{
		ChannelID:    channel,
		UserID:       msg.From.UserID,
		EngineID:     r.template.EngineID,
		Provider:     r.template.Provider,
		Model:        r.template.Model,
		SystemPrompt: r.template.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}
	r.routes[key] = sess.ID()
	r.logger.Debug("route created", "key", key, "session_id", sess.ID())
	return sess, nil
}

// EvictStale drops route entries whose sessions have ended externally and
// returns how many were removed.
func (r *Router) EvictStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, sid := range r.routes {
		if _, live := r.manager.Get(sid); !live {
			delete(r.routes, key)
			removed++
		}
	}
	return removed
}

// Routes reports the number of active route entries.
func (r *Router) Routes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}
