package models

import "time"

// FlowKind identifies which executor drives a flow. The set is closed:
// per-ticket-type behavior lives in recipe parameters, never in new kinds.
type FlowKind string

const (
	FlowKindITSMApproval  FlowKind = "itsm_approval"  // External approval service
	FlowKindInnerPipeline FlowKind = "inner_pipeline" // Operation pipeline runner
	FlowKindResourceApply FlowKind = "resource_apply" // Resource pool allocation
	FlowKindPauseConfirm  FlowKind = "pause_confirm"  // Human confirmation todo
	FlowKindTimerDelay    FlowKind = "timer_delay"    // Self-completing delay
)

// FlowStatus represents the lifecycle state of a single flow.
type FlowStatus string

const (
	FlowStatusPending    FlowStatus = "pending"
	FlowStatusRunning    FlowStatus = "running"
	FlowStatusSucceeded  FlowStatus = "succeeded"
	FlowStatusFailed     FlowStatus = "failed"
	FlowStatusSkipped    FlowStatus = "skipped"
	FlowStatusTerminated FlowStatus = "terminated"
)

// IsTerminal reports whether the flow can no longer transition.
func (s FlowStatus) IsTerminal() bool {
	return s == FlowStatusSucceeded || s == FlowStatusFailed ||
		s == FlowStatusSkipped || s == FlowStatusTerminated
}

// RetryPolicy controls what happens after a flow fails.
type RetryPolicy string

const (
	RetryPolicyManual RetryPolicy = "manual" // An operator may retry the failed flow
	RetryPolicyAuto   RetryPolicy = "auto"   // The engine retries up to MaxRetries attempts
	RetryPolicyNone   RetryPolicy = "none"   // Failure is final
)

// Flow is one stage of a ticket's execution. Position gives a total order
// within the ticket; at most one flow per ticket is ever running.
type Flow struct {
	ID          string         `json:"id"`
	TicketID    string         `json:"ticket_id"`
	Kind        FlowKind       `json:"kind"`
	Position    int            `json:"position"`
	Status      FlowStatus     `json:"status"`
	ExternalRef string         `json:"external_ref,omitempty"` // Task reference at the external system
	Details     map[string]any `json:"details"`                // Input parameters, enriched with prior flows' output
	Output      map[string]any `json:"output,omitempty"`       // Result reported by the external system
	Error       string         `json:"error,omitempty"`
	RetryPolicy RetryPolicy    `json:"retry_policy"`
	MaxRetries  int            `json:"max_retries"`
	Attempts    int            `json:"attempts"`
	Skippable   bool           `json:"skippable"`
	ResourceIDs []string       `json:"resource_ids,omitempty"` // Cluster IDs this flow mutates; empty means non-mutating
	DueAt       *time.Time     `json:"due_at,omitempty"`       // Timer flows only
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Mutating reports whether the flow requires the exclusivity guard.
func (f *Flow) Mutating() bool {
	return len(f.ResourceIDs) > 0
}

// MergeOutput folds src into the flow's details so downstream consumers see
// keys contributed by earlier flows. Existing keys are overwritten.
func (f *Flow) MergeOutput(src map[string]any) {
	if len(src) == 0 {
		return
	}

	if f.Details == nil {
		f.Details = make(map[string]any, len(src))
	}

	for k, v := range src {
		f.Details[k] = v
	}
}
