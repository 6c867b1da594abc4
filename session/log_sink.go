package session

import (
	"context"
	"log/slog"

	"github.com/LdDl/presence-go/presence"
)

// LogSink writes every event as a structured log record.
// Warnings are logged at warn level, the rest at info.
type LogSink struct {
	Logger *slog.Logger
}

// Publish implements Sink
func (sink LogSink) Publish(ctx context.Context, ev presence.Event) error {
	level := slog.LevelInfo
	if ev.Severity == presence.SeverityWarning {
		level = slog.LevelWarn
	}
	attrs := []any{
		"event_id", ev.ID.String(),
		"kind", ev.Kind.String(),
		"severity", string(ev.Severity),
	}
	if ev.Label != "" {
		attrs = append(attrs, "label", ev.Label)
	}
	if len(ev.Labels) > 0 {
		attrs = append(attrs, "labels", ev.Labels)
	}
	sink.Logger.Log(ctx, level, ev.Message(), attrs...)
	return nil
}
