// Package observability provides the shared logging, metrics, and tracing
// plumbing for aide.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" or "text". JSON for production, text for development.
	Format string

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer

	// AddSource includes file and line number in log records.
	AddSource bool
}

// ContextKey is the type for context keys the logger extracts.
type ContextKey string

const (
	// RunIDKey is the context key for agent run ids.
	RunIDKey ContextKey = "run_id"

	// SessionIDKey is the context key for session ids.
	SessionIDKey ContextKey = "session_id"

	// ChannelKey is the context key for the channel type.
	ChannelKey ContextKey = "channel"
)

// NewLogger builds a slog.Logger from the configuration. Records pick up
// run_id, session_id, and channel from the context when present.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return slog.New(contextHandler{handler})
}

// contextHandler decorates records with well-known context values.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := r.Clone()
	if v, ok := ctx.Value(RunIDKey).(string); ok && v != "" {
		rec.AddAttrs(slog.String("run_id", v))
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		rec.AddAttrs(slog.String("session_id", v))
	}
	if v, ok := ctx.Value(ChannelKey).(string); ok && v != "" {
		rec.AddAttrs(slog.String("channel", v))
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// WithRunID returns a context carrying the agent run id for log correlation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithSessionID returns a context carrying the session id for log correlation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithChannel returns a context carrying the channel type for log correlation.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}
