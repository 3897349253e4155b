package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/builder"
	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/todo"
)

// CreateTicketRequest is the API-facing input for opening a ticket.
type CreateTicketRequest struct {
	Type      string
	BizID     string
	Requester string
	Details   map[string]any
	Remark    string
}

// TicketDetail bundles a ticket with its full execution history.
type TicketDetail struct {
	Ticket         *models.Ticket          `json:"ticket"`
	Flows          []*models.Flow          `json:"flows"`
	Todos          []*models.Todo          `json:"todos"`
	OperateRecords []*models.OperateRecord `json:"operate_records"`
}

// Ticket handles ticket-related business operations. Operator commands run
// through the engine synchronously so callers get validation errors back;
// external callbacks are published to the bus for the engine worker, which
// keeps per-ticket ordering.
type Ticket struct {
	persistence persistence.Persistence
	builder     *builder.Builder
	engine      *engine.Engine
	todos       *todo.Manager
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewTicket(
	p persistence.Persistence,
	b *builder.Builder,
	e *engine.Engine,
	todos *todo.Manager,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Ticket {
	return &Ticket{
		persistence: p,
		builder:     b,
		engine:      e,
		todos:       todos,
		publisher:   publisher,
		logger:      logger.With("module", "ticket_service"),
	}
}

// Create builds and persists a new ticket. Activation happens in the engine
// worker when the ticket-created event arrives.
func (s *Ticket) Create(ctx context.Context, req CreateTicketRequest) (*models.Ticket, error) {
	return s.builder.Build(ctx, builder.BuildRequest{
		Type:      req.Type,
		BizID:     req.BizID,
		Requester: req.Requester,
		Details:   req.Details,
		Remark:    req.Remark,
	})
}

// Get returns a ticket with its flows, todos, and exclusivity history.
func (s *Ticket) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	flows, err := s.persistence.Flows().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	todos := make([]*models.Todo, 0)

	for _, flow := range flows {
		flowTodos, err := s.persistence.Todos().ListByFlow(ctx, flow.ID)
		if err != nil {
			return nil, err
		}

		todos = append(todos, flowTodos...)
	}

	records, err := s.persistence.OperateRecords().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	return &TicketDetail{
		Ticket:         ticket,
		Flows:          flows,
		Todos:          todos,
		OperateRecords: records,
	}, nil
}

// List returns tickets matching the filter.
func (s *Ticket) List(ctx context.Context, opts persistence.ListTicketsOptions) ([]*models.Ticket, error) {
	return s.persistence.Tickets().List(ctx, opts)
}

// Types lists the ticket types that can be created.
func (s *Ticket) Types() []string {
	return s.builder.Types()
}

// Terminate cancels a ticket on operator request.
func (s *Ticket) Terminate(ctx context.Context, ticketID, terminatedBy, reason string) error {
	return s.engine.Terminate(ctx, ticketID, terminatedBy, reason)
}

// RetryFlow re-runs a failed flow on operator request.
func (s *Ticket) RetryFlow(ctx context.Context, ticketID, flowID string) error {
	return s.engine.Retry(ctx, ticketID, flowID)
}

// SkipFlow abandons a failed skippable flow on operator request.
func (s *Ticket) SkipFlow(ctx context.Context, ticketID, flowID string) error {
	return s.engine.Skip(ctx, ticketID, flowID)
}

// ResolveTodo records a todo decision. The engine worker picks up the
// resolved event and resumes the flow when its last todo clears.
func (s *Ticket) ResolveTodo(ctx context.Context, todoID string, outcome models.TodoOutcome, resolvedBy string) (*models.Todo, error) {
	resolved, _, err := s.todos.Resolve(ctx, todoID, outcome, resolvedBy)

	return resolved, err
}

// PendingTodos lists open todos for an assignee.
func (s *Ticket) PendingTodos(ctx context.Context, assignee string) ([]*models.Todo, error) {
	return s.persistence.Todos().ListPending(ctx, assignee)
}

// SubmitCallback validates that the flow exists and belongs to the ticket,
// then publishes the callback for the engine worker. Interpretation happens
// there; a stale callback is dropped by the worker, not here.
func (s *Ticket) SubmitCallback(ctx context.Context, ticketID, flowID, externalRef string, payload map[string]any) error {
	flow, err := s.persistence.Flows().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if flow.TicketID != ticketID {
		return fmt.Errorf("flow %s does not belong to ticket %s: %w", flowID, ticketID, persistence.ErrFlowNotFound)
	}

	event := events.FlowCallbackReceived{
		BaseEvent:   events.NewBaseEvent(events.FlowCallbackReceivedEvent, ticketID),
		FlowID:      flowID,
		ExternalRef: externalRef,
		Payload:     payload,
	}

	err = s.publisher.Publish(ctx, ticketID, event)
	if err != nil {
		return fmt.Errorf("failed to publish callback: %w", err)
	}

	s.logger.InfoContext(ctx, "Accepted callback",
		"ticket_id", ticketID, "flow_id", flowID, "external_ref", externalRef)

	return nil
}
