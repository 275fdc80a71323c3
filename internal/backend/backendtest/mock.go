// Package backendtest provides test doubles for the backend package.
package backendtest

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/internal/backend"
)

// MockClient is a configurable test double for backend.Client.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockClient struct {
	NameValue   string
	ModelValue  string
	WindowValue int

	CompleteFunc    func(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error)
	HealthCheckFunc func(ctx context.Context) error

	mu            sync.Mutex
	CompleteCalls int
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockClient) Complete(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Name returns NameValue, defaulting to "mock".
func (m *MockClient) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// ModelName returns ModelValue, defaulting to "mock-model".
func (m *MockClient) ModelName() string {
	if m.ModelValue == "" {
		return "mock-model"
	}
	return m.ModelValue
}

// ContextWindow returns WindowValue, defaulting to 8192.
func (m *MockClient) ContextWindow() int {
	if m.WindowValue == 0 {
		return 8192
	}
	return m.WindowValue
}

// HealthCheck delegates to HealthCheckFunc when set, else reports healthy.
func (m *MockClient) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Completions reports how many times Complete was called.
func (m *MockClient) Completions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// MockThreadClient extends MockClient with thread-mode behavior.
type MockThreadClient struct {
	MockClient

	CreateThreadFunc  func(ctx context.Context) (string, error)
	AppendMessageFunc func(ctx context.Context, threadID, text string, images []string) error
	StartRunFunc      func(ctx context.Context, threadID string, settings backend.Settings) (string, error)
	PollRunFunc       func(ctx context.Context, threadID, runID string) (backend.RunStatus, error)
	LatestMessageFunc func(ctx context.Context, threadID string) (*backend.Completion, error)

	mu          sync.Mutex
	CreateCalls int
	AppendCalls int
	StartCalls  int
	PollCalls   int
	LatestCalls int
}

// CreateThread delegates to CreateThreadFunc and tracks call count.
func (m *MockThreadClient) CreateThread(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()
	return m.CreateThreadFunc(ctx)
}

// AppendMessage delegates to AppendMessageFunc and tracks call count.
func (m *MockThreadClient) AppendMessage(ctx context.Context, threadID, text string, images []string) error {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()
	return m.AppendMessageFunc(ctx, threadID, text, images)
}

// StartRun delegates to StartRunFunc and tracks call count.
func (m *MockThreadClient) StartRun(ctx context.Context, threadID string, settings backend.Settings) (string, error) {
	m.mu.Lock()
	m.StartCalls++
	m.mu.Unlock()
	return m.StartRunFunc(ctx, threadID, settings)
}

// PollRun delegates to PollRunFunc and tracks call count.
func (m *MockThreadClient) PollRun(ctx context.Context, threadID, runID string) (backend.RunStatus, error) {
	m.mu.Lock()
	m.PollCalls++
	m.mu.Unlock()
	return m.PollRunFunc(ctx, threadID, runID)
}

// LatestMessage delegates to LatestMessageFunc and tracks call count.
func (m *MockThreadClient) LatestMessage(ctx context.Context, threadID string) (*backend.Completion, error) {
	m.mu.Lock()
	m.LatestCalls++
	m.mu.Unlock()
	return m.LatestMessageFunc(ctx, threadID)
}

// ThreadCreates reports how many times CreateThread was called.
func (m *MockThreadClient) ThreadCreates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls
}

// Interface guards.
var (
	_ backend.Client        = (*MockClient)(nil)
	_ backend.HealthChecker = (*MockClient)(nil)
	_ backend.ThreadClient  = (*MockThreadClient)(nil)
)
