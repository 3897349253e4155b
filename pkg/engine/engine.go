// Package engine drives tickets through their flows: it activates the next
// pending flow, applies callback outcomes, enforces resource exclusivity,
// and handles operator retry, skip, and terminate commands.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/executor"
	"github.com/dbmesh/ticketflow/pkg/guard"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/todo"
	"github.com/google/uuid"
)

var (
	// ErrCallbackMismatch is returned when a callback does not match the
	// flow's current state or external reference.
	ErrCallbackMismatch = errors.New("callback does not match flow state")
	// ErrInvalidRetry is returned when retrying a flow that is not failed.
	ErrInvalidRetry = errors.New("flow cannot be retried")
	// ErrInvalidSkip is returned when skipping a flow that is not skippable
	// or not failed.
	ErrInvalidSkip = errors.New("flow cannot be skipped")
	// ErrTicketFinished is returned when commanding a ticket that already
	// reached a terminal status.
	ErrTicketFinished = errors.New("ticket already finished")
	// ErrDispatchFailed wraps executor dispatch errors.
	ErrDispatchFailed = errors.New("flow dispatch failed")
)

const (
	defaultMaxAutoRetries  = 3
	defaultSweepInterval   = 30 * time.Second
	defaultBlockRetryDelay = 30 * time.Second
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// MaxAutoRetries caps automatic retries when a flow's own MaxRetries
	// is unset.
	MaxAutoRetries int
	// SweepInterval is how often the sweeper fires due timers and
	// re-attempts parked tickets.
	SweepInterval time.Duration
	// BlockRetryDelay is how long a ticket parks after losing an
	// exclusivity race before the sweeper retries it.
	BlockRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAutoRetries <= 0 {
		c.MaxAutoRetries = defaultMaxAutoRetries
	}

	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}

	if c.BlockRetryDelay <= 0 {
		c.BlockRetryDelay = defaultBlockRetryDelay
	}

	return c
}

type Engine struct {
	persistence persistence.Persistence
	guard       guard.Guard
	executors   *executor.Set
	todos       *todo.Manager
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	config      Config
	now         func() time.Time
}

func NewEngine(
	p persistence.Persistence,
	g guard.Guard,
	executors *executor.Set,
	todos *todo.Manager,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) *Engine {
	return &Engine{
		persistence: p,
		guard:       g,
		executors:   executors,
		todos:       todos,
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
		config:      config.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Bind subscribes the engine to the events that drive it.
func (e *Engine) Bind(bus eventbus.EventBus) error {
	err := bus.Handle(events.TicketCreatedEvent, func(ctx context.Context, event any) error {
		created, ok := event.(*events.TicketCreated)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return e.ActivateNext(ctx, created.TicketID)
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.FlowCallbackReceivedEvent, func(ctx context.Context, event any) error {
		callback, ok := event.(*events.FlowCallbackReceived)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		err := e.OnFlowCallback(ctx, callback.FlowID, callback.ExternalRef, callback.Payload)
		if errors.Is(err, ErrCallbackMismatch) {
			// Stale or duplicate callbacks are dropped, not redelivered.
			e.logger.WarnContext(ctx, "Dropping mismatched callback",
				"flow_id", callback.FlowID, "external_ref", callback.ExternalRef)

			return nil
		}

		return err
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.TodoResolvedEvent, func(ctx context.Context, event any) error {
		resolved, ok := event.(*events.TodoResolved)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return e.OnTodoResolved(ctx, resolved.TodoID)
	})
}

// ActivateNext moves the ticket forward: it dispatches the first pending
// flow, finishes the ticket when no flows remain, and parks the ticket when
// the exclusivity guard refuses. Safe to call repeatedly; a running flow
// means there is nothing to do.
func (e *Engine) ActivateNext(ctx context.Context, ticketID string) error {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	if ticket.Status.IsTerminal() {
		return nil
	}

	flows, err := e.persistence.Flows().ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	var next *models.Flow

	for _, flow := range flows {
		if flow.Status == models.FlowStatusRunning {
			return nil
		}

		if next == nil && !flow.Status.IsTerminal() {
			next = flow
		}
	}

	if next == nil {
		return e.finishTicket(ctx, ticket)
	}

	if next.Mutating() {
		parked, err := e.acquireResources(ctx, ticket, next)
		if err != nil || parked {
			return err
		}
	}

	return e.dispatchFlow(ctx, ticket, next)
}

// acquireResources takes the exclusivity lock for a mutating flow. On a
// conflict the ticket is parked for the sweeper and true is returned.
func (e *Engine) acquireResources(ctx context.Context, ticket *models.Ticket, flow *models.Flow) (bool, error) {
	conflict, err := e.guard.TryAcquire(ctx, ticket.ID, flow.ResourceIDs)
	if err != nil {
		// The guard fails closed: treat infrastructure errors as a
		// conflict and let the sweeper try again.
		e.logger.ErrorContext(ctx, "Guard unavailable, parking ticket", "ticket_id", ticket.ID, "error", err)

		return true, e.parkTicket(ctx, ticket, flow, "", "")
	}

	if conflict != nil {
		return true, e.parkTicket(ctx, ticket, flow, conflict.ResourceID, conflict.HolderID)
	}

	for _, resourceID := range flow.ResourceIDs {
		// A retry re-acquires a lock the ticket already holds; do not
		// duplicate the audit row.
		existing, err := e.persistence.OperateRecords().ActiveByResource(ctx, resourceID)
		if err != nil {
			return false, err
		}

		if existing != nil && existing.TicketID == ticket.ID {
			continue
		}

		record := &models.OperateRecord{
			ID:         uuid.New().String(),
			TicketID:   ticket.ID,
			FlowID:     flow.ID,
			ResourceID: resourceID,
			TicketType: ticket.Type,
			Active:     true,
			CreatedAt:  e.now(),
		}

		err = e.persistence.OperateRecords().Save(ctx, record)
		if err != nil {
			return false, fmt.Errorf("failed to save operate record: %w", err)
		}
	}

	return false, nil
}

func (e *Engine) parkTicket(
	ctx context.Context,
	ticket *models.Ticket,
	flow *models.Flow,
	resourceID, holderID string,
) error {
	until := e.now().Add(e.config.BlockRetryDelay)
	ticket.BlockedUntil = &until
	ticket.UpdatedAt = e.now()

	err := e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	event := events.TicketBlocked{
		BaseEvent:  events.NewBaseEvent(events.TicketBlockedEvent, ticket.ID),
		FlowID:     flow.ID,
		ResourceID: resourceID,
		HolderID:   holderID,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Parked ticket on exclusivity conflict",
		"ticket_id", ticket.ID, "resource_id", resourceID, "holder_id", holderID, "retry_at", until)

	return nil
}

func (e *Engine) dispatchFlow(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	exec, err := e.executors.ForKind(flow.Kind)
	if err != nil {
		return err
	}

	flow.Attempts++

	err = exec.Dispatch(ctx, ticket, flow)
	if err != nil {
		e.logger.ErrorContext(ctx, "Flow dispatch failed",
			"ticket_id", ticket.ID, "flow_id", flow.ID, "attempt", flow.Attempts, "error", err)

		return e.failFlow(ctx, ticket, flow, fmt.Sprintf("%v: %v", ErrDispatchFailed, err))
	}

	flow.Status = models.FlowStatusRunning
	flow.UpdatedAt = e.now()

	err = e.persistence.Flows().Save(ctx, flow)
	if err != nil {
		return err
	}

	ticket.Status = models.TicketStatusRunning
	ticket.BlockedUntil = nil
	ticket.UpdatedAt = e.now()

	err = e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	event := events.FlowDispatched{
		BaseEvent:   events.NewBaseEvent(events.FlowDispatchedEvent, ticket.ID),
		FlowID:      flow.ID,
		Kind:        flow.Kind,
		ExternalRef: flow.ExternalRef,
		Attempt:     flow.Attempts,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Dispatched flow",
		"ticket_id", ticket.ID, "flow_id", flow.ID, "kind", flow.Kind, "attempt", flow.Attempts)

	return nil
}

// OnFlowCallback applies an external system's report to a running flow. The
// external reference must match what dispatch recorded.
func (e *Engine) OnFlowCallback(ctx context.Context, flowID, externalRef string, payload map[string]any) error {
	flow, err := e.persistence.Flows().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if flow.Status != models.FlowStatusRunning {
		return fmt.Errorf("flow %s is %s: %w", flowID, flow.Status, ErrCallbackMismatch)
	}

	if flow.ExternalRef != "" && flow.ExternalRef != externalRef {
		return fmt.Errorf("flow %s expects ref %q, got %q: %w",
			flowID, flow.ExternalRef, externalRef, ErrCallbackMismatch)
	}

	exec, err := e.executors.ForKind(flow.Kind)
	if err != nil {
		return err
	}

	outcome, err := exec.InterpretCallback(ctx, flow, payload)
	if err != nil {
		if errors.Is(err, executor.ErrCallbackNotSupported) {
			return fmt.Errorf("%w: %w", ErrCallbackMismatch, err)
		}

		return err
	}

	ticket, err := e.persistence.Tickets().GetByID(ctx, flow.TicketID)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case models.FlowStatusSucceeded:
		return e.completeFlow(ctx, ticket, flow, outcome.Output)
	case models.FlowStatusFailed:
		return e.failFlow(ctx, ticket, flow, outcome.Error)
	default:
		// Progress update: remember the latest reported output.
		if outcome.Output != nil {
			flow.Output = outcome.Output
			flow.UpdatedAt = e.now()

			return e.persistence.Flows().Save(ctx, flow)
		}

		return nil
	}
}

// OnTodoResolved resumes a paused flow once its last pending todo clears.
func (e *Engine) OnTodoResolved(ctx context.Context, todoID string) error {
	resolved, err := e.persistence.Todos().GetByID(ctx, todoID)
	if err != nil {
		return err
	}

	open, err := e.persistence.Todos().ListByFlow(ctx, resolved.FlowID)
	if err != nil {
		return err
	}

	for _, t := range open {
		if t.Status == models.TodoStatusPending {
			return nil
		}
	}

	flow, err := e.persistence.Flows().GetByID(ctx, resolved.FlowID)
	if err != nil {
		return err
	}

	ticket, err := e.persistence.Tickets().GetByID(ctx, flow.TicketID)
	if err != nil {
		return err
	}

	switch resolved.Kind {
	case models.TodoKindConfirm:
		if flow.Status != models.FlowStatusRunning {
			return nil
		}

		if resolved.Outcome == models.TodoOutcomeRejected {
			return e.failFlow(ctx, ticket, flow, fmt.Sprintf("rejected by %s", resolved.ResolvedBy))
		}

		return e.completeFlow(ctx, ticket, flow, map[string]any{"confirmed_by": resolved.ResolvedBy})
	case models.TodoKindResourceFail:
		if flow.Status != models.FlowStatusFailed {
			return nil
		}

		// Manual intervention finished: approved means the operator fixed
		// the underlying problem and the flow should run again.
		if resolved.Outcome == models.TodoOutcomeApproved {
			flow.Status = models.FlowStatusPending
			flow.Error = ""
			flow.UpdatedAt = e.now()

			err = e.persistence.Flows().Save(ctx, flow)
			if err != nil {
				return err
			}

			ticket.Status = models.TicketStatusPending
			ticket.UpdatedAt = e.now()

			err = e.persistence.Tickets().Save(ctx, ticket)
			if err != nil {
				return err
			}

			return e.ActivateNext(ctx, ticket.ID)
		}

		return nil
	default:
		return nil
	}
}

// completeFlow marks a flow succeeded, releases its resources, folds its
// output into the remaining flows, and activates the next one.
func (e *Engine) completeFlow(ctx context.Context, ticket *models.Ticket, flow *models.Flow, output map[string]any) error {
	flow.Status = models.FlowStatusSucceeded
	flow.Output = output
	flow.UpdatedAt = e.now()

	err := e.persistence.Flows().Save(ctx, flow)
	if err != nil {
		return err
	}

	err = e.releaseResources(ctx, ticket, flow)
	if err != nil {
		return err
	}

	err = e.propagateOutput(ctx, ticket.ID, flow)
	if err != nil {
		return err
	}

	event := events.FlowFinished{
		BaseEvent: events.NewBaseEvent(events.FlowFinishedEvent, ticket.ID),
		FlowID:    flow.ID,
		Status:    flow.Status,
		Output:    output,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Flow succeeded", "ticket_id", ticket.ID, "flow_id", flow.ID)

	return e.ActivateNext(ctx, ticket.ID)
}

// propagateOutput folds the finished flow's output into every later
// non-terminal flow so downstream stages see upstream results.
func (e *Engine) propagateOutput(ctx context.Context, ticketID string, finished *models.Flow) error {
	if len(finished.Output) == 0 {
		return nil
	}

	flows, err := e.persistence.Flows().ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	for _, flow := range flows {
		if flow.Position <= finished.Position || flow.Status.IsTerminal() {
			continue
		}

		flow.MergeOutput(finished.Output)
		flow.UpdatedAt = e.now()

		err = e.persistence.Flows().Save(ctx, flow)
		if err != nil {
			return err
		}
	}

	return nil
}

// failFlow records a failure, auto-retries when the policy allows, and
// otherwise fails the ticket. Resources stay locked on failure: the cluster
// may be half-mutated and must not be touched by another ticket until an
// operator retries, skips, or terminates.
func (e *Engine) failFlow(ctx context.Context, ticket *models.Ticket, flow *models.Flow, message string) error {
	flow.Error = message
	flow.UpdatedAt = e.now()

	failedEvent := events.FlowFailed{
		BaseEvent: events.NewBaseEvent(events.FlowFailedEvent, ticket.ID),
		FlowID:    flow.ID,
		Error:     message,
		Attempt:   flow.Attempts,
	}

	e.publish(ctx, ticket.ID, failedEvent)

	if flow.RetryPolicy == models.RetryPolicyAuto && flow.Attempts < e.maxRetries(flow) {
		flow.Status = models.FlowStatusPending

		err := e.persistence.Flows().Save(ctx, flow)
		if err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "Auto-retrying flow",
			"ticket_id", ticket.ID, "flow_id", flow.ID, "attempt", flow.Attempts)

		return e.dispatchFlow(ctx, ticket, flow)
	}

	flow.Status = models.FlowStatusFailed

	err := e.persistence.Flows().Save(ctx, flow)
	if err != nil {
		return err
	}

	if flow.Kind == models.FlowKindResourceApply {
		_, err = e.todos.Raise(ctx, ticket.ID, flow.ID, models.TodoKindResourceFail, []string{ticket.Requester})
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to raise resource failure todo",
				"ticket_id", ticket.ID, "flow_id", flow.ID, "error", err)
		}
	}

	ticket.Status = models.TicketStatusFailed
	ticket.UpdatedAt = e.now()

	err = e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	event := events.TicketFailed{
		BaseEvent: events.NewBaseEvent(events.TicketFailedEvent, ticket.ID),
		FlowID:    flow.ID,
		Error:     message,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Ticket failed",
		"ticket_id", ticket.ID, "flow_id", flow.ID, "error", message)

	return nil
}

func (e *Engine) maxRetries(flow *models.Flow) int {
	if flow.MaxRetries > 0 {
		return flow.MaxRetries
	}

	return e.config.MaxAutoRetries
}

// Retry re-runs a failed flow on operator request. Attempts carry over;
// manual retries are not capped.
func (e *Engine) Retry(ctx context.Context, ticketID, flowID string) error {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	if ticket.Status == models.TicketStatusTerminated || ticket.Status == models.TicketStatusSucceeded {
		return fmt.Errorf("ticket %s is %s: %w", ticketID, ticket.Status, ErrTicketFinished)
	}

	flow, err := e.flowOfTicket(ctx, ticketID, flowID)
	if err != nil {
		return err
	}

	if flow.Status != models.FlowStatusFailed {
		return fmt.Errorf("flow %s is %s: %w", flowID, flow.Status, ErrInvalidRetry)
	}

	if flow.RetryPolicy != models.RetryPolicyManual {
		return fmt.Errorf("flow %s policy is %s: %w", flowID, flow.RetryPolicy, ErrInvalidRetry)
	}

	flow.Status = models.FlowStatusPending
	flow.Error = ""
	flow.UpdatedAt = e.now()

	err = e.persistence.Flows().Save(ctx, flow)
	if err != nil {
		return err
	}

	ticket.Status = models.TicketStatusPending
	ticket.UpdatedAt = e.now()

	err = e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Retrying flow", "ticket_id", ticketID, "flow_id", flowID)

	return e.ActivateNext(ctx, ticketID)
}

// Skip abandons a failed skippable flow and moves on.
func (e *Engine) Skip(ctx context.Context, ticketID, flowID string) error {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	if ticket.Status == models.TicketStatusTerminated || ticket.Status == models.TicketStatusSucceeded {
		return fmt.Errorf("ticket %s is %s: %w", ticketID, ticket.Status, ErrTicketFinished)
	}

	flow, err := e.flowOfTicket(ctx, ticketID, flowID)
	if err != nil {
		return err
	}

	if !flow.Skippable {
		return fmt.Errorf("flow %s is not skippable: %w", flowID, ErrInvalidSkip)
	}

	if flow.Status != models.FlowStatusFailed && flow.Status != models.FlowStatusPending {
		return fmt.Errorf("flow %s is %s: %w", flowID, flow.Status, ErrInvalidSkip)
	}

	flow.Status = models.FlowStatusSkipped
	flow.UpdatedAt = e.now()

	err = e.persistence.Flows().Save(ctx, flow)
	if err != nil {
		return err
	}

	err = e.releaseResources(ctx, ticket, flow)
	if err != nil {
		return err
	}

	event := events.FlowFinished{
		BaseEvent: events.NewBaseEvent(events.FlowFinishedEvent, ticket.ID),
		FlowID:    flow.ID,
		Status:    models.FlowStatusSkipped,
	}

	e.publish(ctx, ticket.ID, event)

	ticket.Status = models.TicketStatusPending
	ticket.UpdatedAt = e.now()

	err = e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Skipped flow", "ticket_id", ticketID, "flow_id", flowID)

	return e.ActivateNext(ctx, ticketID)
}

// Terminate cancels a ticket: every non-terminal flow is terminated, its
// todos are cancelled, and all held resources are released. A failed ticket
// can still be terminated; that is how an operator releases the locks a
// failed mutating flow keeps holding when neither retry nor skip applies.
func (e *Engine) Terminate(ctx context.Context, ticketID, terminatedBy, reason string) error {
	ticket, err := e.persistence.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	if ticket.Status == models.TicketStatusTerminated || ticket.Status == models.TicketStatusSucceeded {
		return fmt.Errorf("ticket %s is %s: %w", ticketID, ticket.Status, ErrTicketFinished)
	}

	flows, err := e.persistence.Flows().ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	for _, flow := range flows {
		if flow.Status.IsTerminal() {
			// A failed mutating flow still holds its locks.
			if flow.Status == models.FlowStatusFailed {
				err = e.releaseResources(ctx, ticket, flow)
				if err != nil {
					return err
				}
			}

			continue
		}

		if flow.Status == models.FlowStatusRunning && flow.ExternalRef != "" {
			e.cancelExternal(ctx, ticket, flow)
		}

		flow.Status = models.FlowStatusTerminated
		flow.UpdatedAt = e.now()

		err = e.persistence.Flows().Save(ctx, flow)
		if err != nil {
			return err
		}

		err = e.todos.CancelByFlow(ctx, flow.ID)
		if err != nil {
			return err
		}

		err = e.releaseResources(ctx, ticket, flow)
		if err != nil {
			return err
		}
	}

	ticket.Status = models.TicketStatusTerminated
	ticket.BlockedUntil = nil
	ticket.UpdatedAt = e.now()

	err = e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	event := events.TicketTerminated{
		BaseEvent:    events.NewBaseEvent(events.TicketTerminatedEvent, ticket.ID),
		TerminatedBy: terminatedBy,
		Reason:       reason,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Terminated ticket",
		"ticket_id", ticketID, "terminated_by", terminatedBy, "reason", reason)

	return nil
}

// cancelExternal asks the external system to abandon in-flight work. The
// cancel is best-effort: failures are logged and the ticket terminates
// regardless, with the late callback dropped as a mismatch.
func (e *Engine) cancelExternal(ctx context.Context, ticket *models.Ticket, flow *models.Flow) {
	exec, err := e.executors.ForKind(flow.Kind)
	if err != nil {
		return
	}

	canceler, ok := exec.(executor.Canceler)
	if !ok {
		return
	}

	err = canceler.Cancel(ctx, flow)
	if err != nil {
		e.logger.WarnContext(ctx, "Best-effort cancel failed",
			"ticket_id", ticket.ID, "flow_id", flow.ID, "external_ref", flow.ExternalRef, "error", err)
	}
}

func (e *Engine) finishTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.Status = models.TicketStatusSucceeded
	ticket.BlockedUntil = nil
	ticket.UpdatedAt = e.now()

	err := e.persistence.Tickets().Save(ctx, ticket)
	if err != nil {
		return err
	}

	event := events.TicketFinished{
		BaseEvent: events.NewBaseEvent(events.TicketFinishedEvent, ticket.ID),
		Status:    ticket.Status,
	}

	e.publish(ctx, ticket.ID, event)

	e.logger.InfoContext(ctx, "Ticket finished", "ticket_id", ticket.ID)

	return nil
}

func (e *Engine) releaseResources(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	if !flow.Mutating() {
		return nil
	}

	err := e.guard.Release(ctx, ticket.ID, flow.ResourceIDs)
	if err != nil {
		return fmt.Errorf("failed to release guard: %w", err)
	}

	err = e.persistence.OperateRecords().ReleaseByFlow(ctx, ticket.ID, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to release operate records: %w", err)
	}

	return nil
}

func (e *Engine) flowOfTicket(ctx context.Context, ticketID, flowID string) (*models.Flow, error) {
	flow, err := e.persistence.Flows().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow.TicketID != ticketID {
		return nil, fmt.Errorf("flow %s does not belong to ticket %s: %w",
			flowID, ticketID, persistence.ErrFlowNotFound)
	}

	return flow, nil
}

func (e *Engine) publish(ctx context.Context, ticketID string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, ticketID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"ticket_id", ticketID, "event_type", event.GetType(), "error", err)
	}
}
