// Package persistence provides the data storage abstraction layer for workflow templates and instances.
package persistence

import (
	"context"

	"github.com/staffly/approvalflow/pkg/models"
)

// TemplateRepository is the template persistence contract. The engine itself
// never performs direct I/O; this boundary is consumed by the services layer.
type TemplateRepository interface {
	Templates(ctx context.Context) ([]*models.WorkflowTemplate, error)
	TemplatesByBatchType(ctx context.Context, batchType models.BatchType) ([]*models.WorkflowTemplate, error)
	// DefaultTemplate returns the default template for a batch type, or nil
	// when none is marked default.
	DefaultTemplate(ctx context.Context, batchType models.BatchType) (*models.WorkflowTemplate, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	Delete(ctx context.Context, id string) error
}

// InstanceRepository is the instance persistence contract — the sole
// durability boundary for running workflow state.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	// ListByStatus returns instances in the given status. The escalation
	// sweep uses it to find in-progress instances.
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
}

type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
