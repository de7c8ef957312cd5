package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/aide/internal/security"
	"github.com/haasonsaas/aide/internal/sessions"
)

// MemoryEntry is one stored or recalled memory item.
type MemoryEntry struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// MemoryBackend recalls and stores long-lived memories. Wired as the
// OnBeforeFirstRun recall source and exposed to tools through ToolContext.
type MemoryBackend interface {
	Recall(ctx context.Context, query string, k int) ([]MemoryEntry, error)
	Store(ctx context.Context, entry MemoryEntry) error
}

// Identity is a channel-independent view of a user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// IdentityResolver maps a channel-scoped user id to a stable identity.
type IdentityResolver interface {
	Resolve(channel, userID string) (Identity, bool)
}

// PaymentSigner signs outbound payment requests on behalf of the user.
type PaymentSigner interface {
	Sign(ctx context.Context, request json.RawMessage) (string, error)
}

// SkillsLoader lists and loads prompt skills from an external source.
type SkillsLoader interface {
	List() []string
	Load(name string) (string, error)
}

// CanvasPusher lets tools push components onto the visual canvas without the
// tool package depending on the canvas implementation. Push returns the id
// of the node it created.
type CanvasPusher interface {
	Push(ctx context.Context, component json.RawMessage) (string, error)
}

// ToolContext carries the per-run extensions tools may use. All fields are
// optional; tools check for nil. It travels on the context so the registry
// and tools see the same view.
type ToolContext struct {
	SessionID string
	RunID     string
	ChannelID string
	Workspace string

	Security security.Policy
	Memory   MemoryBackend
	Canvas   CanvasPusher
	Identity IdentityResolver
	Signer   PaymentSigner
	Skills   SkillsLoader

	SearchAPIKey string

	// Progress relays intermediate tool output to the event stream.
	Progress func(text string)
}

type toolContextKey struct{}

// WithToolContext stores the tool context on ctx.
func WithToolContext(ctx context.Context, tc *ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// ToolContextFromContext retrieves the tool context, if any.
func ToolContextFromContext(ctx context.Context) (*ToolContext, bool) {
	tc, ok := ctx.Value(toolContextKey{}).(*ToolContext)
	return tc, ok && tc != nil
}

type steeringKey struct{}

// WithSteeringQueue overrides the steering queue used for a run. Without an
// override the loop drains the session's own queue.
func WithSteeringQueue(ctx context.Context, q *sessions.SteeringQueue) context.Context {
	return context.WithValue(ctx, steeringKey{}, q)
}

// SteeringQueueFromContext retrieves a steering queue override, if any.
func SteeringQueueFromContext(ctx context.Context) (*sessions.SteeringQueue, bool) {
	q, ok := ctx.Value(steeringKey{}).(*sessions.SteeringQueue)
	return q, ok && q != nil
}
