// Package quorum decides when a parallel step's collective vote is complete.
package quorum

import "github.com/staffly/approvalflow/pkg/models"

// IsStepSatisfied reports whether the parallel step's completion condition is
// met by the current vote set. It is a pure function: pending and rejected
// votes never count toward satisfaction, and no state is mutated.
//
// A rejected required approval short-circuits to false.
func IsStepSatisfied(step *models.ApprovalStep) bool {
	if !step.IsParallel || len(step.ParallelApprovals) == 0 {
		return false
	}

	if anyRequiredRejected(step.ParallelApprovals) {
		return false
	}

	switch step.ParallelApprovalMode {
	case models.ParallelModeAll:
		return allApproved(step.ParallelApprovals)
	case models.ParallelModeAny:
		return approvedCount(step.ParallelApprovals) >= 1 &&
			requiredAllApproved(step.ParallelApprovals)
	case models.ParallelModeMajority:
		// Strict majority: approved*2 > total
		return approvedCount(step.ParallelApprovals)*2 > len(step.ParallelApprovals) &&
			requiredAllApproved(step.ParallelApprovals)
	default:
		return false
	}
}

func approvedCount(approvals []*models.ParallelApproval) int {
	count := 0

	for _, approval := range approvals {
		if approval.Status == models.ApprovalStatusApproved {
			count++
		}
	}

	return count
}

func allApproved(approvals []*models.ParallelApproval) bool {
	for _, approval := range approvals {
		if approval.Status != models.ApprovalStatusApproved {
			return false
		}
	}

	return true
}

// requiredAllApproved gates the any and majority modes: every required
// approver must have individually approved. A required approver who never
// votes keeps the step pending regardless of other approvals.
func requiredAllApproved(approvals []*models.ParallelApproval) bool {
	for _, approval := range approvals {
		if approval.IsRequired && approval.Status != models.ApprovalStatusApproved {
			return false
		}
	}

	return true
}

func anyRequiredRejected(approvals []*models.ParallelApproval) bool {
	for _, approval := range approvals {
		if approval.IsRequired && approval.Status == models.ApprovalStatusRejected {
			return true
		}
	}

	return false
}
