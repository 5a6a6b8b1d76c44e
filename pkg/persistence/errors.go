// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDefaultTemplateNotFound indicates no default template exists for the batch type.
	ErrDefaultTemplateNotFound = errors.New("no default template for batch type")

	// ErrInstanceNotFound indicates a workflow instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("instance not found")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TemplateID string // Template ID if applicable
	Err        error  // Underlying error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{
		Op:         op,
		TemplateID: templateID,
		Err:        err,
	}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed
	InstanceID string // Instance ID
	Err        error  // Underlying error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsDefaultTemplateNotFound checks if an error indicates no default template exists.
func IsDefaultTemplateNotFound(err error) bool {
	return errors.Is(err, ErrDefaultTemplateNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
