// Package web provides HTTP handlers and REST API endpoints for the approval workflow API.
package web

import "github.com/staffly/approvalflow/pkg/models"

// SubmitInstanceRequest represents the request body for starting an approval
// workflow for a business entity.
type SubmitInstanceRequest struct {
	BatchType  string                `json:"batch_type"  validate:"required"`
	EntityID   string                `json:"entity_id"   validate:"required"`
	TemplateID string                `json:"template_id,omitempty"`
	Entity     models.EntitySnapshot `json:"entity,omitempty"`
}

// VoteRequest represents the request body for approving or rejecting a step.
type VoteRequest struct {
	ApproverID string                `json:"approver_id" validate:"required"`
	Comments   string                `json:"comments,omitempty"`
	Entity     models.EntitySnapshot `json:"entity,omitempty"`
}

// AdvanceRequest carries a fresh entity snapshot for re-evaluating skip and
// auto-approval conditions.
type AdvanceRequest struct {
	Entity models.EntitySnapshot `json:"entity,omitempty"`
}
