package file

import (
	"context"
	"testing"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicket(bizID string) (*models.Ticket, []*models.Flow) {
	now := time.Now().UTC()

	ticket := &models.Ticket{
		ID:        uuid.New().String(),
		Type:      "mysql-deploy",
		BizID:     bizID,
		Requester: "alice",
		Details:   map[string]any{"version": "8.0"},
		Status:    models.TicketStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	flows := []*models.Flow{
		{
			ID:          uuid.New().String(),
			TicketID:    ticket.ID,
			Kind:        models.FlowKindITSMApproval,
			Position:    0,
			Status:      models.FlowStatusPending,
			RetryPolicy: models.RetryPolicyNone,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          uuid.New().String(),
			TicketID:    ticket.ID,
			Kind:        models.FlowKindInnerPipeline,
			Position:    1,
			Status:      models.FlowStatusPending,
			RetryPolicy: models.RetryPolicyAuto,
			MaxRetries:  3,
			ResourceIDs: []string{bizID},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	return ticket, flows
}

func TestCreateWithFlowsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPersistence(dir)
	require.NoError(t, err)

	ctx := context.Background()
	ticket, flows := newTicket("prod-east")
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, ticket, flows))

	// A fresh instance must see the same data from disk.
	reopened, err := NewPersistence(dir)
	require.NoError(t, err)

	stored, err := reopened.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.BizID, stored.BizID)
	assert.Equal(t, "8.0", stored.Details["version"])

	storedFlows, err := reopened.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, storedFlows, 2)
	assert.Equal(t, 0, storedFlows[0].Position)
	assert.Equal(t, models.FlowKindInnerPipeline, storedFlows[1].Kind)
	assert.Equal(t, []string{"prod-east"}, storedFlows[1].ResourceIDs)
}

func TestGetByIDNotFound(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	_, err = p.Tickets().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsTicketNotFound(err))

	_, err = p.Flows().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsFlowNotFound(err))

	_, err = p.Todos().GetByID(context.Background(), "missing")
	assert.True(t, persistence.IsTodoNotFound(err))
}

func TestListTicketsFilters(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	first, firstFlows := newTicket("prod-east")
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, first, firstFlows))

	second, secondFlows := newTicket("prod-west")
	second.Requester = "bob"
	second.Status = models.TicketStatusRunning
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, second, secondFlows))

	byBiz, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{BizID: "prod-east"})
	require.NoError(t, err)
	require.Len(t, byBiz, 1)
	assert.Equal(t, first.ID, byBiz[0].ID)

	byStatus, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{Status: models.TicketStatusRunning})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, second.ID, byStatus[0].ID)

	byRequester, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{Requester: "bob"})
	require.NoError(t, err)
	require.Len(t, byRequester, 1)

	limited, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListBlocked(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	parked, parkedFlows := newTicket("prod-east")
	until := time.Now().UTC().Add(30 * time.Second)
	parked.BlockedUntil = &until
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, parked, parkedFlows))

	free, freeFlows := newTicket("prod-west")
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, free, freeFlows))

	blocked, err := p.Tickets().ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, parked.ID, blocked[0].ID)
}

func TestListDueTimers(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ticket, flows := newTicket("prod-east")
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	flows[0].Kind = models.FlowKindTimerDelay
	flows[0].Status = models.FlowStatusRunning
	flows[0].DueAt = &past
	flows[1].Kind = models.FlowKindTimerDelay
	flows[1].Status = models.FlowStatusRunning
	flows[1].DueAt = &future
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, ticket, flows))

	due, err := p.Flows().ListDueTimers(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, flows[0].ID, due[0].ID)
}

func TestFlowSaveRequiresExisting(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	err = p.Flows().Save(context.Background(), &models.Flow{ID: "ghost"})
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestTodoLifecycle(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC()

	todo := &models.Todo{
		ID:        uuid.New().String(),
		FlowID:    "flow-1",
		TicketID:  "ticket-1",
		Kind:      models.TodoKindConfirm,
		Status:    models.TodoStatusPending,
		Assignees: []string{"bob", "carol"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, p.Todos().Save(ctx, todo))

	pending, err := p.Todos().ListPending(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	pending, err = p.Todos().ListPending(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, pending)

	todo.Status = models.TodoStatusDone
	todo.Outcome = models.TodoOutcomeApproved
	todo.ResolvedBy = "carol"
	require.NoError(t, p.Todos().Save(ctx, todo))

	pending, err = p.Todos().ListPending(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, pending)

	byFlow, err := p.Todos().ListByFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, byFlow, 1)
	assert.Equal(t, models.TodoOutcomeApproved, byFlow[0].Outcome)
}

func TestOperateRecordLifecycle(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	record := &models.OperateRecord{
		ID:         uuid.New().String(),
		TicketID:   "ticket-1",
		FlowID:     "flow-1",
		ResourceID: "mysql-prod-01",
		TicketType: "mysql-deploy",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, p.OperateRecords().Save(ctx, record))

	active, err := p.OperateRecords().ActiveByResource(ctx, "mysql-prod-01")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "ticket-1", active.TicketID)

	none, err := p.OperateRecords().ActiveByResource(ctx, "mysql-prod-02")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, p.OperateRecords().ReleaseByFlow(ctx, "ticket-1", "flow-1"))

	released, err := p.OperateRecords().ActiveByResource(ctx, "mysql-prod-01")
	require.NoError(t, err)
	assert.Nil(t, released)

	history, err := p.OperateRecords().ListByTicket(ctx, "ticket-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.NotNil(t, history[0].ReleasedAt)
}

func TestCreateWithFlowsAtomicity(t *testing.T) {
	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ticket, flows := newTicket("prod-east")
	require.NoError(t, p.Tickets().CreateWithFlows(ctx, ticket, flows))

	// Re-creating the same ticket must not half-apply.
	err = p.Tickets().CreateWithFlows(ctx, ticket, flows)
	require.Error(t, err)

	stored, err := p.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
