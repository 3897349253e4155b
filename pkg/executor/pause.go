package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/todo"
)

// PauseExecutor parks a flow on a confirmation todo. The flow completes when
// the todo is resolved, not through an external callback.
type PauseExecutor struct {
	todos  *todo.Manager
	logger *slog.Logger
}

func NewPauseExecutor(todos *todo.Manager, logger *slog.Logger) *PauseExecutor {
	return &PauseExecutor{
		todos:  todos,
		logger: logger.With("module", "pause_executor"),
	}
}

func (e *PauseExecutor) Kind() models.FlowKind {
	return models.FlowKindPauseConfirm
}

func (e *PauseExecutor) Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	assignees := stringSlice(flow.Details["confirmers"])
	if len(assignees) == 0 {
		assignees = []string{ticket.Requester}
	}

	raised, err := e.todos.Raise(ctx, ticket.ID, flow.ID, models.TodoKindConfirm, assignees)
	if err != nil {
		return fmt.Errorf("failed to raise confirmation todo: %w", err)
	}

	e.logger.InfoContext(ctx, "Paused for confirmation",
		"ticket_id", ticket.ID, "flow_id", flow.ID, "todo_id", raised.ID)

	return nil
}

func (e *PauseExecutor) InterpretCallback(
	_ context.Context,
	flow *models.Flow,
	_ map[string]any,
) (Outcome, error) {
	return Outcome{}, fmt.Errorf("flow %s: %w", flow.ID, ErrCallbackNotSupported)
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
