// Package models defines the core domain models for ticket and flow orchestration.
package models

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"    // Created, no flow dispatched yet (or parked on a lock conflict)
	TicketStatusRunning    TicketStatus = "running"    // At least one flow dispatched, none failed
	TicketStatusSucceeded  TicketStatus = "succeeded"  // All flows reached success or skip
	TicketStatusFailed     TicketStatus = "failed"     // A flow failed with retries exhausted
	TicketStatusTerminated TicketStatus = "terminated" // Cancelled by an operator
)

// IsTerminal reports whether no further status transitions are allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusSucceeded || s == TicketStatusFailed || s == TicketStatusTerminated
}

// Ticket represents a single change request against a managed database
// cluster and its full execution history. A ticket owns an ordered sequence
// of flows fixed at construction time; only statuses mutate afterwards.
type Ticket struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"          validate:"required"`
	BizID        string         `json:"biz_id"        validate:"required"`
	Requester    string         `json:"requester"     validate:"required"`
	Details      map[string]any `json:"details"`
	Status       TicketStatus   `json:"status"`
	Remark       string         `json:"remark,omitempty"`
	BlockedUntil *time.Time     `json:"blocked_until,omitempty"` // Set while parked on an exclusivity conflict
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
