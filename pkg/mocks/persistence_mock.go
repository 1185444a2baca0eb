package mocks

import (
	"context"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	WorkflowRepo *MockWorkflowRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{WorkflowRepo: &MockWorkflowRepository{}}
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository {
	return m.WorkflowRepo
}

func (m *MockPersistence) Overlays() persistence.OverlayRepository {
	args := m.Called()

	return args.Get(0).(persistence.OverlayRepository)
}

func (m *MockPersistence) Users() persistence.UserRepository {
	args := m.Called()

	return args.Get(0).(persistence.UserRepository)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Mirror(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Workflow, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) SetActive(ctx context.Context, externalID string, active bool, versionID string) error {
	args := m.Called(ctx, externalID, active, versionID)

	return args.Error(0)
}

func (m *MockWorkflowRepository) List(ctx context.Context, callerID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) EligibleUsers(ctx context.Context, workflowID int64, onlyEnabled bool) ([]*models.User, error) {
	args := m.Called(ctx, workflowID, onlyEnabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.User), args.Error(1)
}
