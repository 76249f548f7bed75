package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// MultiSink publishes every batch to all of its sinks.
// A failing sink does not prevent delivery to the others.
type MultiSink struct {
	sinks []interfaces.EventSink
	log   *slog.Logger
}

var _ interfaces.EventSink = (*MultiSink)(nil)

// NewMultiSink creates a fan-out sink.
func NewMultiSink(sinks []interfaces.EventSink, log *slog.Logger) *MultiSink {
	if log == nil {
		log = slog.Default()
	}
	return &MultiSink{sinks: sinks, log: log}
}

// Publish delivers events to each sink and joins their errors.
func (m *MultiSink) Publish(ctx context.Context, events ...interfaces.Event) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, events...); err != nil {
			m.log.Warn("Failed to publish to sink",
				slog.String("sink", sink.Name()),
				"err", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name returns identifier for logging.
func (m *MultiSink) Name() string {
	names := make([]string, 0, len(m.sinks))
	for _, sink := range m.sinks {
		names = append(names, sink.Name())
	}
	return "multi:[" + strings.Join(names, ",") + "]"
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
