package models

import "time"

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"     // No step started yet
	InstanceStatusInProgress InstanceStatus = "in-progress" // At least one step started, none terminal
	InstanceStatusApproved   InstanceStatus = "approved"    // Terminal
	InstanceStatusRejected   InstanceStatus = "rejected"    // Terminal
)

// StepStatus is the state of a single instance step.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// ApprovalStatus is the state of one parallel approver's vote.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// SystemApproverID attributes auto-approved steps.
const SystemApproverID = "system"

// WorkflowInstance is the running execution of a template bound to one
// entity. Once terminal it is retained unmodified for audit.
type WorkflowInstance struct {
	ID               string          `json:"id"`
	TemplateID       string          `json:"template_id"`
	EntityType       BatchType       `json:"entity_type"`
	EntityID         string          `json:"entity_id"`
	Status           InstanceStatus  `json:"status"`
	CurrentStepIndex int             `json:"current_step_index"`
	Steps            []*ApprovalStep `json:"steps"`
	CreatedDate      time.Time       `json:"created_date"`
	CompletedDate    *time.Time      `json:"completed_date,omitempty"`
}

// ApprovalStep is the instance-level copy of a template step, carrying the
// mutable runtime state.
type ApprovalStep struct {
	ID                     string               `json:"id"`
	Order                  int                  `json:"order"`
	Name                   string               `json:"name"`
	ApproverRole           string               `json:"approver_role"`
	Status                 StepStatus           `json:"status"`
	RequiresComments       bool                 `json:"requires_comments"`
	CanSkip                bool                 `json:"can_skip"`
	SkipConditions         []StepCondition      `json:"skip_conditions,omitempty"`
	AutoApprovalConditions []StepCondition      `json:"auto_approval_conditions,omitempty"`
	EscalationRules        []EscalationRule     `json:"escalation_rules,omitempty"`
	IsParallel             bool                 `json:"is_parallel"`
	ParallelApprovalMode   ParallelApprovalMode `json:"parallel_approval_mode,omitempty"`
	ParallelApprovals      []*ParallelApproval  `json:"parallel_approvals,omitempty"`
	ApproverID             string               `json:"approver_id,omitempty"`
	Comments               string               `json:"comments,omitempty"`
	ActivatedAt            *time.Time           `json:"activated_at,omitempty"`
	ApprovedDate           *time.Time           `json:"approved_date,omitempty"`
	RejectedDate           *time.Time           `json:"rejected_date,omitempty"`
}

// ParallelApproval is one approver's vote on a parallel step. A vote, once
// approved or rejected, is immutable.
type ParallelApproval struct {
	ID           string         `json:"id"`
	ApproverID   string         `json:"approver_id"`
	ApproverName string         `json:"approver_name"`
	ApproverRole string         `json:"approver_role"`
	IsRequired   bool           `json:"is_required"`
	Status       ApprovalStatus `json:"status"`
	ApprovedDate *time.Time     `json:"approved_date,omitempty"`
	RejectedDate *time.Time     `json:"rejected_date,omitempty"`
	Comments     string         `json:"comments,omitempty"`
}

// IsTerminal reports whether the instance reached a terminal state.
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == InstanceStatusApproved || i.Status == InstanceStatusRejected
}

// CurrentStep returns the step at CurrentStepIndex, or nil when the instance
// is terminal and the index equals len(Steps).
func (i *WorkflowInstance) CurrentStep() *ApprovalStep {
	if i.CurrentStepIndex < 0 || i.CurrentStepIndex >= len(i.Steps) {
		return nil
	}

	return i.Steps[i.CurrentStepIndex]
}

// StepByID returns the step with the given ID, or nil.
func (i *WorkflowInstance) StepByID(stepID string) *ApprovalStep {
	for _, step := range i.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// ApprovalFor returns the parallel approval record for the given approver, or
// nil when the approver is not part of the step's roster.
func (s *ApprovalStep) ApprovalFor(approverID string) *ParallelApproval {
	for _, approval := range s.ParallelApprovals {
		if approval.ApproverID == approverID {
			return approval
		}
	}

	return nil
}
