// Package services provides the application layer over templates, instances
// and the workflow engine.
package services

import (
	"errors"
	"fmt"

	"github.com/staffly/approvalflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidBatchType  = errors.New("invalid batch type")
	ErrTemplateNameTaken = errors.New("template name already in use for batch type")
	ErrTemplateNil       = errors.New("template cannot be nil")
	ErrInvalidImport     = errors.New("template import payload is invalid")
	ErrEmptyEntityID     = errors.New("entity ID cannot be empty")

	// Not Found (404).
	ErrTemplateNotFound = persistence.ErrTemplateNotFound
	ErrInstanceNotFound = persistence.ErrInstanceNotFound

	// Business Logic Conflicts (409 Conflict).
	ErrNoDefaultTemplate    = persistence.ErrDefaultTemplateNotFound
	ErrTemplateNotActive    = errors.New("template is not active")
	ErrTemplateInUseDefault = errors.New("cannot delete the default template")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidBatchType) ||
		errors.Is(err, ErrTemplateNameTaken) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrInvalidImport) ||
		errors.Is(err, ErrEmptyEntityID)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsTemplateNotFound(err) ||
		persistence.IsInstanceNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return persistence.IsDefaultTemplateNotFound(err) ||
		errors.Is(err, ErrTemplateNotActive) ||
		errors.Is(err, ErrTemplateInUseDefault)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
