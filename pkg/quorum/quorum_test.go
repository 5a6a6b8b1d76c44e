package quorum

import (
	"testing"

	"github.com/staffly/approvalflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func parallelStep(mode models.ParallelApprovalMode, statuses ...models.ApprovalStatus) *models.ApprovalStep {
	step := &models.ApprovalStep{
		IsParallel:           true,
		ParallelApprovalMode: mode,
	}

	for i, status := range statuses {
		step.ParallelApprovals = append(step.ParallelApprovals, &models.ParallelApproval{
			ID:         "a-" + string(rune('0'+i)),
			ApproverID: "approver-" + string(rune('0'+i)),
			Status:     status,
		})
	}

	return step
}

func TestModeAll(t *testing.T) {
	step := parallelStep(models.ParallelModeAll,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
	)
	assert.True(t, IsStepSatisfied(step))

	// Flipping any single approval breaks satisfaction
	step.ParallelApprovals[1].Status = models.ApprovalStatusPending
	assert.False(t, IsStepSatisfied(step))

	step.ParallelApprovals[1].Status = models.ApprovalStatusRejected
	assert.False(t, IsStepSatisfied(step))
}

func TestModeAny(t *testing.T) {
	step := parallelStep(models.ParallelModeAny,
		models.ApprovalStatusPending,
		models.ApprovalStatusPending,
	)
	assert.False(t, IsStepSatisfied(step))

	step.ParallelApprovals[1].Status = models.ApprovalStatusApproved
	assert.True(t, IsStepSatisfied(step))
}

func TestModeMajority(t *testing.T) {
	// Boundary: N=4, 2 approved is NOT a majority
	step := parallelStep(models.ParallelModeMajority,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
		models.ApprovalStatusPending,
		models.ApprovalStatusPending,
	)
	assert.False(t, IsStepSatisfied(step))

	// 3 of 4 is
	step.ParallelApprovals[2].Status = models.ApprovalStatusApproved
	assert.True(t, IsStepSatisfied(step))
}

func TestModeMajority_RejectionsDoNotCount(t *testing.T) {
	step := parallelStep(models.ParallelModeMajority,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
		models.ApprovalStatusRejected,
	)
	assert.True(t, IsStepSatisfied(step))
}

// The required-approver gate on any/majority modes is a product decision kept
// deliberately isolated here; reversing it is a one-line change in
// IsStepSatisfied.
func TestRequiredApproverGate_AnyMode(t *testing.T) {
	step := parallelStep(models.ParallelModeAny,
		models.ApprovalStatusApproved,
		models.ApprovalStatusPending,
		models.ApprovalStatusApproved,
	)
	step.ParallelApprovals[1].IsRequired = true

	// Satisfied is false until the required approver individually approves,
	// regardless of other approvals
	assert.False(t, IsStepSatisfied(step))

	step.ParallelApprovals[1].Status = models.ApprovalStatusApproved
	assert.True(t, IsStepSatisfied(step))
}

func TestRequiredApproverGate_MajorityMode(t *testing.T) {
	step := parallelStep(models.ParallelModeMajority,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
		models.ApprovalStatusApproved,
		models.ApprovalStatusPending,
	)
	step.ParallelApprovals[3].IsRequired = true

	assert.False(t, IsStepSatisfied(step))

	step.ParallelApprovals[3].Status = models.ApprovalStatusApproved
	assert.True(t, IsStepSatisfied(step))
}

func TestRequiredRejectedShortCircuits(t *testing.T) {
	step := parallelStep(models.ParallelModeAny,
		models.ApprovalStatusApproved,
		models.ApprovalStatusRejected,
	)
	step.ParallelApprovals[1].IsRequired = true

	assert.False(t, IsStepSatisfied(step))
}

func TestNonParallelStepNeverSatisfied(t *testing.T) {
	assert.False(t, IsStepSatisfied(&models.ApprovalStep{IsParallel: false}))
	assert.False(t, IsStepSatisfied(&models.ApprovalStep{
		IsParallel:           true,
		ParallelApprovalMode: models.ParallelModeAll,
	}))
}
