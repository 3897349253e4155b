package web

import "github.com/dbmesh/ticketflow/pkg/models"

// CreateTicketRequest is the payload for opening a ticket.
type CreateTicketRequest struct {
	Type      string         `json:"type"      validate:"required"`
	BizID     string         `json:"biz_id"    validate:"required"`
	Requester string         `json:"requester" validate:"required"`
	Details   map[string]any `json:"details"   validate:"required"`
	Remark    string         `json:"remark"`
}

// TerminateTicketRequest carries the operator and reason for a cancel.
type TerminateTicketRequest struct {
	TerminatedBy string `json:"terminated_by" validate:"required"`
	Reason       string `json:"reason"`
}

// CallbackRequest is the generic payload external systems post back. The
// external reference must match what was issued at dispatch time.
type CallbackRequest struct {
	ExternalRef string         `json:"external_ref" validate:"required"`
	Payload     map[string]any `json:"payload"      validate:"required"`
}

// ResolveTodoRequest records a human decision on a todo.
type ResolveTodoRequest struct {
	Outcome    models.TodoOutcome `json:"outcome"     validate:"required,oneof=approved rejected"`
	ResolvedBy string             `json:"resolved_by" validate:"required"`
}
