package models

import "time"

// OperateRecord is the audit row behind the exclusivity guard: one active
// record per (resource, ticket) while a mutating flow is in flight. For a
// given resource at most one active record may exist across all tickets.
type OperateRecord struct {
	ID         string     `json:"id"`
	TicketID   string     `json:"ticket_id"`
	FlowID     string     `json:"flow_id"`
	ResourceID string     `json:"resource_id"` // Cluster ID
	TicketType string     `json:"ticket_type"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}
