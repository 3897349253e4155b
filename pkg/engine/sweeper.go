package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically fires due timer flows and re-attempts tickets parked
// on exclusivity conflicts. It is the only component that moves time-driven
// flows forward, so exactly one sweeper should run per deployment.
type Sweeper struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger
}

func NewSweeper(e *Engine, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine: e,
		cron:   cron.New(),
		logger: logger.With("module", "sweeper"),
	}
}

// Start schedules the sweep at the engine's configured interval.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.engine.config.SweepInterval)

	_, err := s.cron.AddFunc(spec, func() {
		err := s.engine.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.engine.config.SweepInterval)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// Sweep performs one pass: complete due timers, then re-attempt parked
// tickets whose back-off has elapsed.
func (e *Engine) Sweep(ctx context.Context) error {
	err := e.FireDueTimers(ctx)
	if err != nil {
		return err
	}

	return e.ResumeBlocked(ctx)
}

// FireDueTimers completes every running timer flow whose due time passed.
func (e *Engine) FireDueTimers(ctx context.Context) error {
	due, err := e.persistence.Flows().ListDueTimers(ctx)
	if err != nil {
		return err
	}

	for _, flow := range due {
		ticket, err := e.persistence.Tickets().GetByID(ctx, flow.TicketID)
		if err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "Timer fired", "ticket_id", ticket.ID, "flow_id", flow.ID)

		err = e.completeFlow(ctx, ticket, flow, map[string]any{"fired_at": e.now().Format(time.RFC3339)})
		if err != nil {
			return err
		}
	}

	return nil
}

// ResumeBlocked re-runs activation for parked tickets whose back-off has
// elapsed. Activation re-takes the guard and either proceeds or parks the
// ticket again.
func (e *Engine) ResumeBlocked(ctx context.Context) error {
	blocked, err := e.persistence.Tickets().ListBlocked(ctx)
	if err != nil {
		return err
	}

	now := e.now()

	for _, ticket := range blocked {
		if ticket.BlockedUntil == nil || ticket.BlockedUntil.After(now) {
			continue
		}

		if ticket.Status == models.TicketStatusFailed {
			continue
		}

		e.logger.InfoContext(ctx, "Re-attempting parked ticket", "ticket_id", ticket.ID)

		err = e.ActivateNext(ctx, ticket.ID)
		if err != nil {
			return err
		}
	}

	return nil
}
