// Package services provides the ticket operations consumed by the API layer
// and standardized error classification for HTTP mapping.
package services

import (
	"errors"
	"fmt"

	"github.com/dbmesh/ticketflow/pkg/builder"
	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/todo"
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

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, builder.ErrTicketValidation) ||
		errors.Is(err, builder.ErrUnknownTicketType) ||
		errors.Is(err, engine.ErrCallbackMismatch)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsTicketNotFound(err) ||
		persistence.IsFlowNotFound(err) ||
		persistence.IsTodoNotFound(err)
}

// IsConflictError checks if an error is a business state conflict that
// should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, engine.ErrInvalidRetry) ||
		errors.Is(err, engine.ErrInvalidSkip) ||
		errors.Is(err, engine.ErrTicketFinished) ||
		errors.Is(err, todo.ErrTodoAlreadyResolved)
}

// IsForbiddenError checks if an error should map to HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, todo.ErrNotAssignee)
}
