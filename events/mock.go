package events

import (
	"context"

	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockEventSink mocks the EventSink interface
type MockEventSink struct {
	mock.Mock
}

// Publish mocks the Publish method
func (m *MockEventSink) Publish(ctx context.Context, events ...interfaces.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// Name mocks the Name method
func (m *MockEventSink) Name() string {
	args := m.Called()
	return args.String(0)
}
