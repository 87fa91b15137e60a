// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Stability() config.StabilityConfig {
	args := m.Called()
	return args.Get(0).(config.StabilityConfig)
}

func (m *MockConfig) Sanitizer() config.SanitizerConfig {
	args := m.Called()
	return args.Get(0).(config.SanitizerConfig)
}

func (m *MockConfig) Producer() config.ProducerConfig {
	args := m.Called()
	return args.Get(0).(config.ProducerConfig)
}

func (m *MockConfig) LLM() config.LLMConfig {
	args := m.Called()
	return args.Get(0).(config.LLMConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Batch() config.BatchConfig {
	args := m.Called()
	return args.Get(0).(config.BatchConfig)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Browser Mocks --

// MockBrowserManager mocks the schemas.BrowserManager interface.
type MockBrowserManager struct {
	mock.Mock
}

func (m *MockBrowserManager) Open(ctx context.Context, url string) (schemas.PageHandle, error) {
	args := m.Called(ctx, url)
	page, _ := args.Get(0).(schemas.PageHandle)
	return page, args.Error(1)
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockPage mocks the schemas.PageHandle interface.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) URL() string { return m.Called().String(0) }

// ContentLength accepts either a fixed int or a func(context.Context) int so
// tests can model a document that keeps growing.
func (m *MockPage) ContentLength(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) int); ok {
		return fn(ctx), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockPage) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Close() error { return m.Called().Error(0) }
