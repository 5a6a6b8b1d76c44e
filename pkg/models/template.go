// Package models defines the core domain models for approval workflow templates and instances.
package models

import (
	"errors"
	"sort"
	"time"
)

// BatchType is the category of business entity a workflow template applies to.
type BatchType string

const (
	BatchTypePayroll       BatchType = "payroll"
	BatchTypeInvoice       BatchType = "invoice"
	BatchTypeTimesheet     BatchType = "timesheet"
	BatchTypeExpense       BatchType = "expense"
	BatchTypeCompliance    BatchType = "compliance"
	BatchTypePurchaseOrder BatchType = "purchase-order"
)

// BatchTypes lists every valid batch type, in display order.
var BatchTypes = []BatchType{
	BatchTypePayroll,
	BatchTypeInvoice,
	BatchTypeTimesheet,
	BatchTypeExpense,
	BatchTypeCompliance,
	BatchTypePurchaseOrder,
}

// IsValid reports whether b is one of the known batch types.
func (b BatchType) IsValid() bool {
	for _, known := range BatchTypes {
		if b == known {
			return true
		}
	}

	return false
}

// ParallelApprovalMode is the rule deciding when a parallel step's collective
// vote is complete.
type ParallelApprovalMode string

const (
	ParallelModeAll      ParallelApprovalMode = "all"
	ParallelModeAny      ParallelApprovalMode = "any"
	ParallelModeMajority ParallelApprovalMode = "majority"
)

// IsValid reports whether m is one of the known parallel approval modes.
func (m ParallelApprovalMode) IsValid() bool {
	switch m {
	case ParallelModeAll, ParallelModeAny, ParallelModeMajority:
		return true
	}

	return false
}

// WorkflowTemplate is a reusable, versionable approval workflow definition.
// At most one template per batch type may be the default.
type WorkflowTemplate struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description"`
	BatchType   BatchType               `json:"batch_type"  validate:"required"`
	IsActive    bool                    `json:"is_active"`
	IsDefault   bool                    `json:"is_default"`
	Steps       []*ApprovalStepTemplate `json:"steps"       validate:"required,min=1,dive"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// ApprovalStepTemplate defines one step of a template. Order is significant
// and contiguous from 0 across the template's steps.
type ApprovalStepTemplate struct {
	ID                     string                      `json:"id"`
	Order                  int                         `json:"order"`
	Name                   string                      `json:"name"          validate:"required,min=1"`
	Description            string                      `json:"description,omitempty"`
	ApproverRole           string                      `json:"approver_role" validate:"required"`
	RequiresComments       bool                        `json:"requires_comments"`
	CanSkip                bool                        `json:"can_skip"`
	SkipConditions         []StepCondition             `json:"skip_conditions,omitempty"`
	AutoApprovalConditions []StepCondition             `json:"auto_approval_conditions,omitempty"`
	EscalationRules        []EscalationRule            `json:"escalation_rules,omitempty"`
	IsParallel             bool                        `json:"is_parallel"`
	ParallelApprovalMode   ParallelApprovalMode        `json:"parallel_approval_mode,omitempty"`
	ParallelApprovers      []*ParallelApproverTemplate `json:"parallel_approvers,omitempty"`
}

// ParallelApproverTemplate is one role-tagged participant of a parallel step.
type ParallelApproverTemplate struct {
	ApproverID   string `json:"approver_id"   validate:"required"`
	ApproverName string `json:"approver_name"`
	ApproverRole string `json:"approver_role"`
	IsRequired   bool   `json:"is_required"`
}

// EscalationRule signals reassignment and notification when a step has been
// active longer than the threshold. Escalation is advisory; it never changes
// instance or step status.
type EscalationRule struct {
	HoursUntilEscalation   int    `json:"hours_until_escalation" validate:"min=1"`
	EscalateTo             string `json:"escalate_to"            validate:"required"`
	NotifyOriginalApprover bool   `json:"notify_original_approver"`
}

var (
	// ErrTemplateHasNoSteps indicates a template cannot be activated or
	// instantiated without at least one step.
	ErrTemplateHasNoSteps = errors.New("template has no steps")

	// ErrStepOrderNotDense indicates step order values do not form a dense
	// 0..n-1 range.
	ErrStepOrderNotDense = errors.New("step order values must form a dense 0..n-1 range")

	// ErrParallelStepInvalid indicates a parallel step is missing its approval
	// mode or approver roster. Such a step could never be satisfied at runtime.
	ErrParallelStepInvalid = errors.New("parallel step requires a known approval mode and at least one approver")
)

// ValidateSteps checks the step-ordering invariant (order values are unique
// and form a dense 0..n-1 range) and that every parallel step carries a known
// approval mode and a non-empty roster.
func (t *WorkflowTemplate) ValidateSteps() error {
	if len(t.Steps) == 0 {
		return ErrTemplateHasNoSteps
	}

	seen := make(map[int]bool, len(t.Steps))

	for _, step := range t.Steps {
		if step.Order < 0 || step.Order >= len(t.Steps) || seen[step.Order] {
			return ErrStepOrderNotDense
		}

		seen[step.Order] = true

		if step.IsParallel && (!step.ParallelApprovalMode.IsValid() || len(step.ParallelApprovers) == 0) {
			return ErrParallelStepInvalid
		}
	}

	return nil
}

// SortSteps orders the step slice by the order field.
func (t *WorkflowTemplate) SortSteps() {
	sort.SliceStable(t.Steps, func(i, j int) bool {
		return t.Steps[i].Order < t.Steps[j].Order
	})
}

// NormalizeStepOrder re-assigns dense 0..n-1 order values preserving the
// current relative ordering. Used after a step is removed or reordered so
// index-shifting never leaves gaps.
func (t *WorkflowTemplate) NormalizeStepOrder() {
	t.SortSteps()

	for i, step := range t.Steps {
		step.Order = i
	}
}

// RemoveStep deletes the step with the given ID and renumbers the remainder.
// Returns false when the step is not part of the template.
func (t *WorkflowTemplate) RemoveStep(stepID string) bool {
	for i, step := range t.Steps {
		if step.ID == stepID {
			t.Steps = append(t.Steps[:i], t.Steps[i+1:]...)
			t.NormalizeStepOrder()

			return true
		}
	}

	return false
}
