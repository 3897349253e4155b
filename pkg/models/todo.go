package models

import "time"

// TodoKind categorizes the human action a todo asks for.
type TodoKind string

const (
	TodoKindConfirm      TodoKind = "confirm"       // Pause-for-confirmation checkpoint
	TodoKindResourceFail TodoKind = "resource_fail" // Manual intervention after a resource apply failure
)

// TodoStatus represents the lifecycle state of a todo.
type TodoStatus string

const (
	TodoStatusPending    TodoStatus = "pending"
	TodoStatusDone       TodoStatus = "done"
	TodoStatusTerminated TodoStatus = "terminated"
)

// TodoOutcome is the decision recorded when a todo is resolved.
type TodoOutcome string

const (
	TodoOutcomeApproved TodoOutcome = "approved"
	TodoOutcomeRejected TodoOutcome = "rejected"
)

// Todo is a human-actionable task blocking a paused flow. A flow may own
// several todos; it resumes only when all of them are resolved.
type Todo struct {
	ID          string      `json:"id"`
	FlowID      string      `json:"flow_id"`
	TicketID    string      `json:"ticket_id"`
	Kind        TodoKind    `json:"kind"`
	Status      TodoStatus  `json:"status"`
	Assignees   []string    `json:"assignees"`
	Outcome     TodoOutcome `json:"outcome,omitempty"`
	ResolvedBy  string      `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
