// Package events defines event types and structures for ticket lifecycle
// notifications on the event bus.
package events

import (
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event. Messages are keyed by ticket ID so a
// partitioned bus serializes handling per ticket.
const Topic = "ticketflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Ticket lifecycle events.
	TicketCreatedEvent    EventType = "ticket.created"
	TicketFinishedEvent   EventType = "ticket.finished"
	TicketFailedEvent     EventType = "ticket.failed"
	TicketTerminatedEvent EventType = "ticket.terminated"
	TicketBlockedEvent    EventType = "ticket.blocked"

	// Flow lifecycle events.
	FlowDispatchedEvent       EventType = "flow.dispatched"
	FlowCallbackReceivedEvent EventType = "flow.callback.received"
	FlowFinishedEvent         EventType = "flow.finished"
	FlowFailedEvent           EventType = "flow.failed"

	// Todo lifecycle events.
	TodoRaisedEvent   EventType = "todo.raised"
	TodoResolvedEvent EventType = "todo.resolved"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TicketID  string         `json:"ticket_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, ticketID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TicketID:  ticketID,
		Metadata:  make(map[string]any),
	}
}

// TicketCreated is published after the builder persists a new ticket; the
// engine reacts by activating the first flow.
type TicketCreated struct {
	BaseEvent

	TicketType string `json:"ticket_type"`
	Requester  string `json:"requester"`
}

func (e TicketCreated) GetType() EventType {
	return TicketCreatedEvent
}

type TicketFinished struct {
	BaseEvent

	Status models.TicketStatus `json:"status"`
}

func (e TicketFinished) GetType() EventType {
	return TicketFinishedEvent
}

type TicketFailed struct {
	BaseEvent

	FlowID string `json:"flow_id"`
	Error  string `json:"error"`
}

func (e TicketFailed) GetType() EventType {
	return TicketFailedEvent
}

type TicketTerminated struct {
	BaseEvent

	TerminatedBy string `json:"terminated_by"`
	Reason       string `json:"reason,omitempty"`
}

func (e TicketTerminated) GetType() EventType {
	return TicketTerminatedEvent
}

// TicketBlocked records that activation was parked on an exclusivity
// conflict and will be re-attempted by the sweeper.
type TicketBlocked struct {
	BaseEvent

	FlowID     string `json:"flow_id"`
	ResourceID string `json:"resource_id"`
	HolderID   string `json:"holder_id"` // Ticket currently holding the lock
}

func (e TicketBlocked) GetType() EventType {
	return TicketBlockedEvent
}

type FlowDispatched struct {
	BaseEvent

	FlowID      string          `json:"flow_id"`
	Kind        models.FlowKind `json:"kind"`
	ExternalRef string          `json:"external_ref,omitempty"`
	Attempt     int             `json:"attempt"`
}

func (e FlowDispatched) GetType() EventType {
	return FlowDispatchedEvent
}

// FlowCallbackReceived is published by the webhook layer when an external
// system reports progress; the engine worker consumes it.
type FlowCallbackReceived struct {
	BaseEvent

	FlowID      string         `json:"flow_id"`
	ExternalRef string         `json:"external_ref"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (e FlowCallbackReceived) GetType() EventType {
	return FlowCallbackReceivedEvent
}

type FlowFinished struct {
	BaseEvent

	FlowID string            `json:"flow_id"`
	Status models.FlowStatus `json:"status"`
	Output map[string]any    `json:"output,omitempty"`
}

func (e FlowFinished) GetType() EventType {
	return FlowFinishedEvent
}

type FlowFailed struct {
	BaseEvent

	FlowID  string `json:"flow_id"`
	Error   string `json:"error"`
	Attempt int    `json:"attempt"`
}

func (e FlowFailed) GetType() EventType {
	return FlowFailedEvent
}

type TodoRaised struct {
	BaseEvent

	TodoID    string          `json:"todo_id"`
	FlowID    string          `json:"flow_id"`
	Kind      models.TodoKind `json:"kind"`
	Assignees []string        `json:"assignees"`
}

func (e TodoRaised) GetType() EventType {
	return TodoRaisedEvent
}

type TodoResolved struct {
	BaseEvent

	TodoID     string             `json:"todo_id"`
	FlowID     string             `json:"flow_id"`
	Outcome    models.TodoOutcome `json:"outcome"`
	ResolvedBy string             `json:"resolved_by"`
}

func (e TodoResolved) GetType() EventType {
	return TodoResolvedEvent
}
