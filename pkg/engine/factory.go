package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staffly/approvalflow/pkg/models"
)

// Instantiate materializes a template into a running workflow instance bound
// to one entity. It only constructs: persistence is the caller's
// responsibility, and the first Advance call activates step 0.
func Instantiate(template *models.WorkflowTemplate, entityType models.BatchType, entityID string) (*models.WorkflowInstance, error) {
	if !template.IsActive {
		return nil, newError("Instantiate", "", "", fmt.Errorf("%w: template %s is not active", ErrInvalidTemplate, template.ID))
	}

	if err := template.ValidateSteps(); err != nil {
		return nil, newError("Instantiate", "", "", fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
	}

	instance := &models.WorkflowInstance{
		ID:               uuid.New().String(),
		TemplateID:       template.ID,
		EntityType:       entityType,
		EntityID:         entityID,
		Status:           models.InstanceStatusPending,
		CurrentStepIndex: 0,
		CreatedDate:      time.Now().UTC(),
	}

	template.SortSteps()

	for _, stepTemplate := range template.Steps {
		instance.Steps = append(instance.Steps, instantiateStep(stepTemplate))
	}

	return instance, nil
}

func instantiateStep(stepTemplate *models.ApprovalStepTemplate) *models.ApprovalStep {
	step := &models.ApprovalStep{
		ID:                     uuid.New().String(),
		Order:                  stepTemplate.Order,
		Name:                   stepTemplate.Name,
		ApproverRole:           stepTemplate.ApproverRole,
		Status:                 models.StepStatusPending,
		RequiresComments:       stepTemplate.RequiresComments,
		CanSkip:                stepTemplate.CanSkip,
		SkipConditions:         cloneConditions(stepTemplate.SkipConditions),
		AutoApprovalConditions: cloneConditions(stepTemplate.AutoApprovalConditions),
		EscalationRules:        cloneRules(stepTemplate.EscalationRules),
		IsParallel:             stepTemplate.IsParallel,
		ParallelApprovalMode:   stepTemplate.ParallelApprovalMode,
	}

	for _, approver := range stepTemplate.ParallelApprovers {
		step.ParallelApprovals = append(step.ParallelApprovals, &models.ParallelApproval{
			ID:           uuid.New().String(),
			ApproverID:   approver.ApproverID,
			ApproverName: approver.ApproverName,
			ApproverRole: approver.ApproverRole,
			IsRequired:   approver.IsRequired,
			Status:       models.ApprovalStatusPending,
		})
	}

	return step
}

func cloneConditions(conds []models.StepCondition) []models.StepCondition {
	if len(conds) == 0 {
		return nil
	}

	cloned := make([]models.StepCondition, len(conds))
	copy(cloned, conds)

	return cloned
}

func cloneRules(rules []models.EscalationRule) []models.EscalationRule {
	if len(rules) == 0 {
		return nil
	}

	cloned := make([]models.EscalationRule, len(rules))
	copy(cloned, rules)

	return cloned
}
