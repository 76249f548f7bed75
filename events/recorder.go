package events

import (
	"context"
	"slices"
	"sync"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []interfaces.Event
}

var _ interfaces.EventSink = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends events.
func (r *Recorder) Publish(_ context.Context, events ...interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Name returns identifier for logging.
func (r *Recorder) Name() string {
	return "recorder"
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Kinds returns the kinds of the published events in order.
func (r *Recorder) Kinds() []interfaces.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]interfaces.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
