package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
)

const defaultDelay = time.Hour

// TimerExecutor parks a flow until its due time. The engine's sweeper fires
// due timers; no external system is involved.
type TimerExecutor struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewTimerExecutor(logger *slog.Logger) *TimerExecutor {
	return &TimerExecutor{
		logger: logger.With("module", "timer_executor"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *TimerExecutor) Kind() models.FlowKind {
	return models.FlowKindTimerDelay
}

func (e *TimerExecutor) Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	due, err := e.dueTime(flow)
	if err != nil {
		return err
	}

	flow.DueAt = &due

	e.logger.InfoContext(ctx, "Armed timer", "ticket_id", ticket.ID, "flow_id", flow.ID, "due_at", due)

	return nil
}

func (e *TimerExecutor) InterpretCallback(
	_ context.Context,
	flow *models.Flow,
	_ map[string]any,
) (Outcome, error) {
	return Outcome{}, fmt.Errorf("flow %s: %w", flow.ID, ErrCallbackNotSupported)
}

// dueTime reads either an absolute "due_at" (RFC 3339) or a relative
// "delay_seconds" from the flow's details.
func (e *TimerExecutor) dueTime(flow *models.Flow) (time.Time, error) {
	if raw, ok := flow.Details["due_at"].(string); ok && raw != "" {
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid due_at %q: %w", raw, err)
		}

		return due.UTC(), nil
	}

	if seconds, ok := flow.Details["delay_seconds"].(float64); ok && seconds > 0 {
		return e.now().Add(time.Duration(seconds) * time.Second), nil
	}

	return e.now().Add(defaultDelay), nil
}
