package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes journal events to an slog.Logger.
// Useful for development when you want to see recovery events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
// Error events are written at Warn level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("component", event.Component.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Target != "" {
		attrs = append(attrs, slog.String("target", event.Target))
	}

	level := slog.LevelDebug

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
			slog.Bool("connected", event.StateChange.Connected),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Attempt != nil:
		attrs = append(attrs,
			slog.String("phase", event.Attempt.Phase.String()),
			slog.Int("attempt", event.Attempt.Number),
			slog.Int("max", event.Attempt.Max),
		)
		if event.Attempt.Delay > 0 {
			attrs = append(attrs, slog.Duration("delay", event.Attempt.Delay))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_kind", event.Error.Kind.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "journal", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
