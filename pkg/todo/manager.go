// Package todo manages the human work items that block paused flows.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrTodoAlreadyResolved is returned when resolving a todo that is no
	// longer pending.
	ErrTodoAlreadyResolved = errors.New("todo already resolved")
	// ErrNotAssignee is returned when the resolver is not on the todo's
	// assignee list.
	ErrNotAssignee = errors.New("resolver is not an assignee of this todo")
)

// Manager raises and resolves todos and reports when a flow's last pending
// todo has been cleared.
type Manager struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewManager(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "todo_manager"),
	}
}

// Raise creates a pending todo for the flow and announces it on the bus.
func (m *Manager) Raise(
	ctx context.Context,
	ticketID, flowID string,
	kind models.TodoKind,
	assignees []string,
) (*models.Todo, error) {
	now := time.Now().UTC()

	t := &models.Todo{
		ID:        uuid.New().String(),
		FlowID:    flowID,
		TicketID:  ticketID,
		Kind:      kind,
		Status:    models.TodoStatusPending,
		Assignees: assignees,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := m.persistence.Todos().Save(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to save todo: %w", err)
	}

	event := events.TodoRaised{
		BaseEvent: events.NewBaseEvent(events.TodoRaisedEvent, ticketID),
		TodoID:    t.ID,
		FlowID:    flowID,
		Kind:      kind,
		Assignees: assignees,
	}

	err = m.publisher.Publish(ctx, ticketID, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish todo raised event", "todo_id", t.ID, "error", err)
	}

	m.logger.InfoContext(ctx, "Raised todo", "todo_id", t.ID, "flow_id", flowID, "kind", kind)

	return t, nil
}

// Resolve records the outcome on a pending todo. The boolean result reports
// whether the owning flow has no pending todos left.
func (m *Manager) Resolve(
	ctx context.Context,
	todoID string,
	outcome models.TodoOutcome,
	resolvedBy string,
) (*models.Todo, bool, error) {
	t, err := m.persistence.Todos().GetByID(ctx, todoID)
	if err != nil {
		return nil, false, err
	}

	if t.Status != models.TodoStatusPending {
		return nil, false, fmt.Errorf("todo %s is %s: %w", todoID, t.Status, ErrTodoAlreadyResolved)
	}

	if len(t.Assignees) > 0 && !slices.Contains(t.Assignees, resolvedBy) {
		return nil, false, fmt.Errorf("user %s cannot resolve todo %s: %w", resolvedBy, todoID, ErrNotAssignee)
	}

	now := time.Now().UTC()
	t.Status = models.TodoStatusDone
	t.Outcome = outcome
	t.ResolvedBy = resolvedBy
	t.ResolvedAt = &now
	t.UpdatedAt = now

	err = m.persistence.Todos().Save(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save resolved todo: %w", err)
	}

	event := events.TodoResolved{
		BaseEvent:  events.NewBaseEvent(events.TodoResolvedEvent, t.TicketID),
		TodoID:     t.ID,
		FlowID:     t.FlowID,
		Outcome:    outcome,
		ResolvedBy: resolvedBy,
	}

	err = m.publisher.Publish(ctx, t.TicketID, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish todo resolved event", "todo_id", t.ID, "error", err)
	}

	cleared, err := m.flowCleared(ctx, t.FlowID)
	if err != nil {
		return nil, false, err
	}

	m.logger.InfoContext(ctx, "Resolved todo",
		"todo_id", t.ID, "outcome", outcome, "resolved_by", resolvedBy, "flow_cleared", cleared)

	return t, cleared, nil
}

// CancelByFlow terminates every pending todo of a flow. Used when a ticket
// is terminated while a flow waits on human action.
func (m *Manager) CancelByFlow(ctx context.Context, flowID string) error {
	todos, err := m.persistence.Todos().ListByFlow(ctx, flowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, t := range todos {
		if t.Status != models.TodoStatusPending {
			continue
		}

		t.Status = models.TodoStatusTerminated
		t.UpdatedAt = now

		err = m.persistence.Todos().Save(ctx, t)
		if err != nil {
			return fmt.Errorf("failed to terminate todo %s: %w", t.ID, err)
		}
	}

	return nil
}

func (m *Manager) flowCleared(ctx context.Context, flowID string) (bool, error) {
	todos, err := m.persistence.Todos().ListByFlow(ctx, flowID)
	if err != nil {
		return false, err
	}

	for _, t := range todos {
		if t.Status == models.TodoStatusPending {
			return false, nil
		}
	}

	return true, nil
}
