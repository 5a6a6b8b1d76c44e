// Package engine implements the approval workflow state machine.
package engine

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. All are local and recoverable: the caller fixes its
// input or refreshes its view and retries.
var (
	// ErrInvalidTemplate indicates a template with zero steps, a non-dense
	// step order, or an inactive flag at instantiation time.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrInstanceNotFound indicates the instance does not exist in the store.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTerminalInstance indicates a mutation attempted on an already
	// approved or rejected instance.
	ErrTerminalInstance = errors.New("instance is terminal")

	// ErrStepNotCurrent indicates a vote submitted for a step that is not the
	// active one. Votes on non-current steps are rejected, not queued.
	ErrStepNotCurrent = errors.New("step is not the current step")

	// ErrDuplicateVote indicates the same approver voting twice on a parallel
	// step. The second call never double-counts.
	ErrDuplicateVote = errors.New("approver already voted on this step")

	// ErrUnknownApprover indicates a vote from an approver not listed in the
	// step's parallel roster.
	ErrUnknownApprover = errors.New("approver is not part of the step roster")

	// ErrMissingComments indicates the step requires comments and none were
	// supplied.
	ErrMissingComments = errors.New("step requires comments")
)

// Error wraps engine errors with operation context.
type Error struct {
	Op         string // Operation being performed (e.g., "ApproveStep")
	InstanceID string
	StepID     string // Step ID if applicable
	Err        error  // Underlying error
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s failed for step %s of instance %s: %v", e.Op, e.StepID, e.InstanceID, e.Err)
	}

	return fmt.Sprintf("%s failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op, instanceID, stepID string, err error) *Error {
	return &Error{
		Op:         op,
		InstanceID: instanceID,
		StepID:     stepID,
		Err:        err,
	}
}

// IsInvalidTemplate checks if an error indicates an invalid template.
func IsInvalidTemplate(err error) bool {
	return errors.Is(err, ErrInvalidTemplate)
}

// IsTerminalInstance checks if an error indicates a mutation on a terminal instance.
func IsTerminalInstance(err error) bool {
	return errors.Is(err, ErrTerminalInstance)
}

// IsStepNotCurrent checks if an error indicates a vote on a non-current step.
func IsStepNotCurrent(err error) bool {
	return errors.Is(err, ErrStepNotCurrent)
}

// IsDuplicateVote checks if an error indicates a repeated vote.
func IsDuplicateVote(err error) bool {
	return errors.Is(err, ErrDuplicateVote)
}

// IsUnknownApprover checks if an error indicates a vote from outside the roster.
func IsUnknownApprover(err error) bool {
	return errors.Is(err, ErrUnknownApprover)
}

// IsMissingComments checks if an error indicates missing required comments.
func IsMissingComments(err error) bool {
	return errors.Is(err, ErrMissingComments)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
