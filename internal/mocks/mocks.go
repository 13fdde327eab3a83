// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
)

// -- Module Mock --

// MockModule mocks schemas.Module.
type MockModule struct {
	mock.Mock
}

var _ schemas.Module = (*MockModule)(nil)

func (m *MockModule) Name() schemas.ModuleName {
	args := m.Called()
	return args.Get(0).(schemas.ModuleName)
}

func (m *MockModule) SetEnabled(ctx context.Context, enabled bool) {
	m.Called(ctx, enabled)
}

func (m *MockModule) Configure(settings map[string]any) error {
	args := m.Called(settings)
	return args.Error(0)
}

func (m *MockModule) Reset() {
	m.Called()
}

func (m *MockModule) Economics() schemas.Economics {
	args := m.Called()
	return args.Get(0).(schemas.Economics)
}

func (m *MockModule) HandleEvent(ctx context.Context, msg bus.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// NewMockModule returns a MockModule that answers Name with name.
func NewMockModule(name schemas.ModuleName) *MockModule {
	m := new(MockModule)
	m.On("Name").Return(name).Maybe()
	return m
}

// -- Metrics Recorder Mock --

// MockMetricsRecorder mocks coordinator.MetricsRecorder.
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordAutomation(ctx context.Context, efficiency, roi float64, active int) {
	m.Called(ctx, efficiency, roi, active)
}

// -- Publisher Mock --

// MockPublisher records published events. It satisfies bus.Publisher without
// delivering anything.
type MockPublisher struct {
	mu       sync.Mutex
	Messages []bus.Message
	Err      error
}

func (p *MockPublisher) Publish(_ context.Context, topic bus.Topic, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Messages = append(p.Messages, bus.Message{Topic: topic, Payload: payload})
	return nil
}

// Topics returns the topics published so far, in order.
func (p *MockPublisher) Topics() []bus.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bus.Topic, len(p.Messages))
	for i, msg := range p.Messages {
		out[i] = msg.Topic
	}
	return out
}
