package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dbmesh/ticketflow/pkg/builder"
	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/executor"
	"github.com/dbmesh/ticketflow/pkg/guard"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/persistence/file"
	"github.com/dbmesh/ticketflow/pkg/todo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	published []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

type fixedITSM struct{}

func (fixedITSM) CreateApproval(_ context.Context, _ clients.ApprovalRequest) (string, error) {
	return "SHEET-1", nil
}

func (fixedITSM) CancelApproval(_ context.Context, _ string) error { return nil }

type fixedPipeline struct{}

func (fixedPipeline) TriggerRun(_ context.Context, _ clients.PipelineRequest) (string, error) {
	return "RUN-1", nil
}

func (fixedPipeline) CancelRun(_ context.Context, _ string) error { return nil }

func setupService(t *testing.T) (*Ticket, *engine.Engine, persistence.Persistence, *capturingPublisher) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	publisher := &capturingPublisher{}
	todos := todo.NewManager(store, publisher, logger)

	executors := executor.NewSet(
		executor.NewITSMExecutor(fixedITSM{}, logger),
		executor.NewPipelineExecutor(fixedPipeline{}, logger),
	)

	e := engine.NewEngine(store, guard.NewMemoryGuard(), executors, todos, publisher, logger, engine.Config{})

	b := builder.NewBuilder(store, publisher, logger)
	for _, recipe := range builder.BuiltinRecipes() {
		require.NoError(t, b.Register(recipe))
	}

	return NewTicket(store, b, e, todos, publisher, logger), e, store, publisher
}

func TestGetAggregatesHistory(t *testing.T) {
	service, e, store, _ := setupService(t)
	ctx := context.Background()

	ticket, err := service.Create(ctx, CreateTicketRequest{
		Type:      "kafka-restart",
		BizID:     "kafka-prod",
		Requester: "alice",
		Details:   map[string]any{"reason": "rebalance"},
	})
	require.NoError(t, err)
	require.NoError(t, e.ActivateNext(ctx, ticket.ID))

	detail, err := service.Get(ctx, ticket.ID)
	require.NoError(t, err)

	assert.Equal(t, ticket.ID, detail.Ticket.ID)
	assert.Len(t, detail.Flows, 2)
	assert.Equal(t, models.FlowStatusRunning, detail.Flows[0].Status)
	assert.Empty(t, detail.Todos)

	records, err := store.OperateRecords().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, records, detail.OperateRecords)
}

func TestSubmitCallback_PublishesForWorker(t *testing.T) {
	service, e, store, publisher := setupService(t)
	ctx := context.Background()

	ticket, err := service.Create(ctx, CreateTicketRequest{
		Type:      "kafka-restart",
		BizID:     "kafka-prod",
		Requester: "alice",
		Details:   map[string]any{"reason": "rebalance"},
	})
	require.NoError(t, err)
	require.NoError(t, e.ActivateNext(ctx, ticket.ID))

	flows, err := store.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)

	payload := map[string]any{"status": "approved"}
	require.NoError(t, service.SubmitCallback(ctx, ticket.ID, flows[0].ID, "SHEET-1", payload))

	var received *events.FlowCallbackReceived

	for _, event := range publisher.published {
		if cb, ok := event.(events.FlowCallbackReceived); ok {
			received = &cb
		}
	}

	require.NotNil(t, received)
	assert.Equal(t, flows[0].ID, received.FlowID)
	assert.Equal(t, "SHEET-1", received.ExternalRef)
	assert.Equal(t, payload, received.Payload)

	// The flow state is untouched until the worker interprets the callback.
	flow, err := store.Flows().GetByID(ctx, flows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusRunning, flow.Status)
}

func TestSubmitCallback_FlowOwnership(t *testing.T) {
	service, e, store, _ := setupService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, CreateTicketRequest{
		Type:      "kafka-restart",
		BizID:     "kafka-a",
		Requester: "alice",
		Details:   map[string]any{"reason": "rebalance"},
	})
	require.NoError(t, err)

	second, err := service.Create(ctx, CreateTicketRequest{
		Type:      "kafka-restart",
		BizID:     "kafka-b",
		Requester: "alice",
		Details:   map[string]any{"reason": "rebalance"},
	})
	require.NoError(t, err)
	require.NoError(t, e.ActivateNext(ctx, second.ID))

	flows, err := store.Flows().ListByTicket(ctx, second.ID)
	require.NoError(t, err)

	err = service.SubmitCallback(ctx, first.ID, flows[0].ID, "SHEET-1", map[string]any{"status": "approved"})
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestResolveTodo_Errors(t *testing.T) {
	service, _, _, _ := setupService(t)
	ctx := context.Background()

	_, err := service.ResolveTodo(ctx, "no-such-todo", models.TodoOutcomeApproved, "bob")
	assert.True(t, IsNotFoundError(err))
}
