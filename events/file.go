package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// FileSink appends events as JSON lines to a local file.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
	log  *slog.Logger
}

var _ interfaces.EventSink = (*FileSink)(nil)

// NewFileSink opens path for appending, creating it and its parent directory if needed.
func NewFileSink(path string, log *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return &FileSink{f: f, path: path, log: log}, nil
}

// Publish appends the batch and syncs the file.
func (s *FileSink) Publish(ctx context.Context, events ...interfaces.Event) error {
	data, err := EncodeBatch(events)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync event file: %w", err)
	}

	s.log.Debug("Appended events to file",
		slog.String("path", s.path),
		slog.Int("count", len(events)))
	return nil
}

// Name returns identifier for logging.
func (s *FileSink) Name() string {
	return fmt.Sprintf("file-%s", s.path)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
