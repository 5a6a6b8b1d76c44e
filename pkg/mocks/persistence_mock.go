package mocks

import (
	"context"

	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTemplateRepository is a mock implementation of persistence.TemplateRepository interface.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) TemplatesByBatchType(ctx context.Context, batchType models.BatchType) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx, batchType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) DefaultTemplate(ctx context.Context, batchType models.BatchType) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, batchType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Templates *MockTemplateRepository
	Instances *MockInstanceRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Templates: &MockTemplateRepository{},
		Instances: &MockInstanceRepository{},
	}
}

func (m *MockPersistence) TemplateRepository() persistence.TemplateRepository {
	return m.Templates
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.Instances
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
