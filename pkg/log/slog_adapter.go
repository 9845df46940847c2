package log

import (
	"context"
	"log/slog"
)

// SlogOption configures a SlogAdapter.
type SlogOption func(*SlogAdapter)

// WithLevel sets the level events are written at. Error events are always
// written at least at warn level.
func WithLevel(level slog.Level) SlogOption {
	return func(a *SlogAdapter) { a.level = level }
}

// SlogAdapter writes session events as slog records, one record per event
// with the payload in a group named after its kind. Handy on the console
// during development; use FileLogger for anything meant to be analyzed.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter returns an adapter writing to logger at debug level.
func NewSlogAdapter(logger *slog.Logger, opts ...SlogOption) *SlogAdapter {
	a := &SlogAdapter{logger: logger, level: slog.LevelDebug}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Log writes event.
func (a *SlogAdapter) Log(event Event) {
	level := a.level
	if event.Error != nil && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("session_id", event.SessionID),
		slog.String("role", event.LocalRole.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("direction", event.Direction.String()),
	)
	if event.Key != 0 {
		attrs = append(attrs, slog.Uint64("key", event.Key))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if payload, ok := payloadAttr(event); ok {
		attrs = append(attrs, payload)
	}

	a.logger.LogAttrs(ctx, level, "session "+event.Category.String(), attrs...)
}

func payloadAttr(event Event) (slog.Attr, bool) {
	switch {
	case event.Data != nil:
		return slog.Group("data",
			slog.Int("size", event.Data.Size),
			slog.Bool("truncated", event.Data.Truncated),
		), true
	case event.Notify != nil:
		args := []any{slog.String("kind", event.Notify.Kind)}
		if event.Notify.Error != "" {
			args = append(args, slog.String("error", event.Notify.Error))
		}
		return slog.Group("notify", args...), true
	case event.StateChange != nil:
		sc := event.StateChange
		args := []any{
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
		}
		if sc.Reason != "" {
			args = append(args, slog.String("reason", sc.Reason))
		}
		return slog.Group("state", args...), true
	case event.Error != nil:
		e := event.Error
		args := []any{
			slog.String("layer", e.Layer.String()),
			slog.String("message", e.Message),
		}
		if e.Kind != "" {
			args = append(args, slog.String("kind", e.Kind))
		}
		if e.Context != "" {
			args = append(args, slog.String("context", e.Context))
		}
		return slog.Group("error", args...), true
	}
	return slog.Attr{}, false
}

var _ Logger = (*SlogAdapter)(nil)
