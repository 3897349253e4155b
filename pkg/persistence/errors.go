// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTicketNotFound indicates a ticket was not found by the given identifier.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrTodoNotFound indicates a todo was not found by the given identifier.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrTicketAlreadyExists indicates a ticket with the same identifier already exists.
	ErrTicketAlreadyExists = errors.New("ticket already exists")
)

// TicketError wraps ticket-related errors with operation context.
type TicketError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Save", "CreateWithFlows")
	TicketID string
	Err      error
}

func (e *TicketError) Error() string {
	return fmt.Sprintf("%s operation failed for ticket %s: %v", e.Op, e.TicketID, e.Err)
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

func (e *TicketError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTicketError creates a new ticket error with context.
func NewTicketError(op, ticketID string, err error) *TicketError {
	return &TicketError{Op: op, TicketID: ticketID, Err: err}
}

// FlowError wraps flow-related errors with operation context.
type FlowError struct {
	Op       string
	TicketID string
	FlowID   string
	Err      error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s in ticket %s: %v", e.Op, e.FlowID, e.TicketID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTicketNotFound checks if an error indicates a ticket was not found.
func IsTicketNotFound(err error) bool {
	return errors.Is(err, ErrTicketNotFound)
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsTodoNotFound checks if an error indicates a todo was not found.
func IsTodoNotFound(err error) bool {
	return errors.Is(err, ErrTodoNotFound)
}
