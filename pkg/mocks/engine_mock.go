package mocks

import (
	"context"

	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock implementation of the engine client used by the services.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ListWorkflows(ctx context.Context) ([]engine.WorkflowSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]engine.WorkflowSummary), args.Error(1)
}

func (m *MockEngine) GetWorkflow(ctx context.Context, id string) (*engine.WorkflowDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*engine.WorkflowDetail), args.Error(1)
}

func (m *MockEngine) UpdateWorkflow(ctx context.Context, id string, patch map[string]any) (*engine.WorkflowDetail, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*engine.WorkflowDetail), args.Error(1)
}

func (m *MockEngine) CreateWorkflow(ctx context.Context, definition map[string]any) (*engine.WorkflowDetail, error) {
	args := m.Called(ctx, definition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*engine.WorkflowDetail), args.Error(1)
}

func (m *MockEngine) ForwardWebhook(ctx context.Context, req engine.WebhookRequest) (*engine.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*engine.Response), args.Error(1)
}

func (m *MockEngine) TriggerWebhook(ctx context.Context, path, contentType string, body []byte) (*engine.Response, error) {
	args := m.Called(ctx, path, contentType, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*engine.Response), args.Error(1)
}
