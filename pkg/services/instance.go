package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/staffly/approvalflow/pkg/engine"
	"github.com/staffly/approvalflow/pkg/models"
	"github.com/staffly/approvalflow/pkg/persistence"
)

// Instance drives workflow instances: submission binds an entity to a
// template, votes are routed through the engine.
type Instance struct {
	persistence persistence.Persistence
	engine      *engine.Engine
}

// NewInstance creates a new instance service.
func NewInstance(persistence persistence.Persistence, eng *engine.Engine) *Instance {
	return &Instance{
		persistence: persistence,
		engine:      eng,
	}
}

// SubmitRequest starts an approval workflow for one business entity.
type SubmitRequest struct {
	BatchType models.BatchType
	EntityID  string
	// TemplateID selects a specific template. When empty the default
	// template for the batch type is used.
	TemplateID string
	// Entity is the flat snapshot conditions evaluate against.
	Entity models.EntitySnapshot
}

// Submit resolves the template, instantiates it and advances the new
// instance to its first actionable step.
func (s *Instance) Submit(ctx context.Context, req SubmitRequest) (*models.WorkflowInstance, error) {
	if !req.BatchType.IsValid() {
		return nil, NewValidationError("Submit", "INVALID_BATCH_TYPE",
			fmt.Sprintf("invalid batch type '%s'", req.BatchType), ErrInvalidBatchType)
	}

	if strings.TrimSpace(req.EntityID) == "" {
		return nil, ErrEmptyEntityID
	}

	template, err := s.resolveTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	instance, err := engine.Instantiate(template, req.BatchType, req.EntityID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.InstanceRepository().Save(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}

	return s.engine.Advance(ctx, instance.ID, req.Entity)
}

func (s *Instance) resolveTemplate(ctx context.Context, req SubmitRequest) (*models.WorkflowTemplate, error) {
	repo := s.persistence.TemplateRepository()

	if req.TemplateID != "" {
		template, err := repo.GetByID(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}

		if template == nil {
			return nil, ErrTemplateNotFound
		}

		return template, nil
	}

	template, err := repo.DefaultTemplate(ctx, req.BatchType)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, ErrNoDefaultTemplate
	}

	return template, nil
}

// FetchByID retrieves an instance by its ID.
func (s *Instance) FetchByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := s.persistence.InstanceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	return instance, nil
}

// ListByStatus retrieves all instances in the given status.
func (s *Instance) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	instances, err := s.persistence.InstanceRepository().ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return instances, nil
}

// Advance re-evaluates the current step against a fresh entity snapshot.
func (s *Instance) Advance(ctx context.Context, instanceID string, entity models.EntitySnapshot) (*models.WorkflowInstance, error) {
	return s.engine.Advance(ctx, instanceID, entity)
}

// Approve records an approval vote on the given step.
func (s *Instance) Approve(ctx context.Context, instanceID, stepID, approverID, comments string, entity models.EntitySnapshot) (*models.WorkflowInstance, error) {
	return s.engine.ApproveStep(ctx, instanceID, stepID, approverID, comments, entity)
}

// Reject records a rejection vote on the given step.
func (s *Instance) Reject(ctx context.Context, instanceID, stepID, approverID, comments string) (*models.WorkflowInstance, error) {
	return s.engine.RejectStep(ctx, instanceID, stepID, approverID, comments)
}
