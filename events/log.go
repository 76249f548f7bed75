package events

import (
	"context"
	"log/slog"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

var _ interfaces.EventSink = (*LogSink)(nil)

// NewLogSink creates a sink logging through log.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish logs every event at info level.
func (s *LogSink) Publish(ctx context.Context, events ...interfaces.Event) error {
	for _, ev := range events {
		attrs := []any{
			slog.String("event_id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.String("topic", ev.Topic.Hex()),
			slog.Time("timestamp", ev.Timestamp),
		}
		if ev.CredentialID != 0 {
			attrs = append(attrs, slog.Uint64("credential_id", uint64(ev.CredentialID)))
		}
		if ev.Owner != nil {
			attrs = append(attrs, slog.String("owner", ev.Owner.Hex()))
		}
		if ev.From != nil {
			attrs = append(attrs, slog.String("from", ev.From.Hex()))
		}
		if ev.To != nil {
			attrs = append(attrs, slog.String("to", ev.To.Hex()))
		}
		if ev.Account != nil {
			attrs = append(attrs, slog.String("account", ev.Account.Hex()))
		}
		if ev.ContentRef != "" {
			attrs = append(attrs, slog.String("content_ref", ev.ContentRef))
		}
		if ev.Frozen != nil {
			attrs = append(attrs, slog.Bool("frozen", *ev.Frozen))
		}
		s.log.InfoContext(ctx, "Registry event", attrs...)
	}
	return nil
}

// Name returns identifier for logging.
func (s *LogSink) Name() string {
	return "log"
}
