package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
	"github.com/dbmesh/ticketflow/pkg/persistence/file"
	"github.com/dbmesh/ticketflow/pkg/services"
	"github.com/dbmesh/ticketflow/pkg/todo"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

type stubITSM struct{}

func (stubITSM) CreateApproval(_ context.Context, _ clients.ApprovalRequest) (string, error) {
	return "SHEET-1", nil
}

func (stubITSM) CancelApproval(_ context.Context, _ string) error { return nil }

type stubPipeline struct{}

func (stubPipeline) TriggerRun(_ context.Context, _ clients.PipelineRequest) (string, error) {
	return "RUN-1", nil
}

func (stubPipeline) CancelRun(_ context.Context, _ string) error { return nil }

type stubPool struct{}

func (stubPool) Apply(_ context.Context, _ clients.ResourceApplyRequest) (string, error) {
	return "ORDER-1", nil
}

type testEnv struct {
	app       *fiber.App
	store     *file.Persistence
	engine    *engine.Engine
	publisher *recordingPublisher
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	publisher := &recordingPublisher{}
	todos := todo.NewManager(store, publisher, logger)

	executors := executor.NewSet(
		executor.NewITSMExecutor(stubITSM{}, logger),
		executor.NewPipelineExecutor(stubPipeline{}, logger),
		executor.NewResourceExecutor(stubPool{}, logger),
		executor.NewPauseExecutor(todos, logger),
		executor.NewTimerExecutor(logger),
	)

	e := engine.NewEngine(store, guard.NewMemoryGuard(), executors, todos, publisher, logger, engine.Config{})

	b := builder.NewBuilder(store, publisher, logger)
	for _, recipe := range builder.BuiltinRecipes() {
		require.NoError(t, b.Register(recipe))
	}

	ticketService := services.NewTicket(store, b, e, todos, publisher, logger)

	app := fiber.New()
	handlers := NewAPIHandlers(ticketService, validator.New())
	handlers.RegisterRoutes(app)

	return &testEnv{app: app, store: store, engine: e, publisher: publisher}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func createTicket(t *testing.T, env *testEnv) *models.Ticket {
	t.Helper()

	resp := postJSON(t, env.app, "/tickets/", map[string]any{
		"type":      "kafka-restart",
		"biz_id":    "kafka-prod",
		"requester": "alice",
		"details":   map[string]any{"reason": "kernel upgrade"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ticket models.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticket))

	return &ticket
}

func TestCreateTicket(t *testing.T) {
	env := setupTestApp(t)

	ticket := createTicket(t, env)

	assert.Equal(t, "kafka-restart", ticket.Type)
	assert.Equal(t, models.TicketStatusPending, ticket.Status)

	stored, err := env.store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Requester)
}

func TestCreateTicket_UnknownType(t *testing.T) {
	env := setupTestApp(t)

	resp := postJSON(t, env.app, "/tickets/", map[string]any{
		"type":      "oracle-deploy",
		"biz_id":    "prod",
		"requester": "alice",
		"details":   map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTicket_MissingFields(t *testing.T) {
	env := setupTestApp(t)

	resp := postJSON(t, env.app, "/tickets/", map[string]any{"type": "kafka-restart"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTicket(t *testing.T) {
	env := setupTestApp(t)
	ticket := createTicket(t, env)

	req := httptest.NewRequest(http.MethodGet, "/tickets/"+ticket.ID, nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail services.TicketDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))

	assert.Equal(t, ticket.ID, detail.Ticket.ID)
	assert.Len(t, detail.Flows, 2)
}

func TestGetTicket_NotFound(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/tickets/no-such-id", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTicketTypes(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/ticket-types", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Types []string `json:"types"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Contains(t, body.Types, "kafka-restart")
	assert.Contains(t, body.Types, "mysql-deploy")
}

func TestTerminateTicket(t *testing.T) {
	env := setupTestApp(t)
	ticket := createTicket(t, env)

	resp := postJSON(t, env.app, "/tickets/"+ticket.ID+"/terminate", map[string]any{
		"terminated_by": "carol",
		"reason":        "wrong cluster",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := env.store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusTerminated, stored.Status)

	// Terminating again conflicts.
	resp = postJSON(t, env.app, "/tickets/"+ticket.ID+"/terminate", map[string]any{
		"terminated_by": "carol",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitCallback(t *testing.T) {
	env := setupTestApp(t)
	ticket := createTicket(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.ActivateNext(ctx, ticket.ID))

	flows, err := env.store.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)

	resp := postJSON(t, env.app, "/tickets/"+ticket.ID+"/flows/"+flows[0].ID+"/callbacks", map[string]any{
		"external_ref": "SHEET-1",
		"payload":      map[string]any{"status": "approved"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The callback is queued for the engine worker, not applied inline.
	var queued *events.FlowCallbackReceived

	for _, event := range env.publisher.published {
		if cb, ok := event.(events.FlowCallbackReceived); ok {
			queued = &cb
		}
	}

	require.NotNil(t, queued)
	assert.Equal(t, flows[0].ID, queued.FlowID)
	assert.Equal(t, "SHEET-1", queued.ExternalRef)
}

func TestSubmitCallback_UnknownFlow(t *testing.T) {
	env := setupTestApp(t)
	ticket := createTicket(t, env)

	resp := postJSON(t, env.app, "/tickets/"+ticket.ID+"/flows/no-such-flow/callbacks", map[string]any{
		"external_ref": "SHEET-1",
		"payload":      map[string]any{"status": "approved"},
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRetryFlow_Invalid(t *testing.T) {
	env := setupTestApp(t)
	ticket := createTicket(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.ActivateNext(ctx, ticket.ID))

	flows, err := env.store.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)

	// The approval flow is running, not failed.
	resp := postJSON(t, env.app, "/tickets/"+ticket.ID+"/flows/"+flows[0].ID+"/retry", map[string]any{})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResolveTodo(t *testing.T) {
	env := setupTestApp(t)
	ctx := context.Background()

	// Open a redis-scale ticket and walk it to the confirmation pause.
	resp := postJSON(t, env.app, "/tickets/", map[string]any{
		"type":      "redis-scale",
		"biz_id":    "redis-prod",
		"requester": "alice",
		"details": map[string]any{
			"target_shards": 8,
			"confirmers":    []string{"bob"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ticket models.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticket))

	require.NoError(t, env.engine.ActivateNext(ctx, ticket.ID))

	flows, err := env.store.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NoError(t, env.engine.OnFlowCallback(ctx, flows[0].ID, "SHEET-1", map[string]any{"status": "approved"}))

	todos, err := env.store.Todos().ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, todos, 1)

	// The wrong user cannot resolve it.
	resp = postJSON(t, env.app, "/todos/"+todos[0].ID+"/resolve", map[string]any{
		"outcome":     "approved",
		"resolved_by": "mallory",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postJSON(t, env.app, "/todos/"+todos[0].ID+"/resolve", map[string]any{
		"outcome":     "approved",
		"resolved_by": "bob",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolved models.Todo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&resolved))
	assert.Equal(t, models.TodoStatusDone, resolved.Status)
	assert.Equal(t, models.TodoOutcomeApproved, resolved.Outcome)

	// Resolving twice conflicts.
	resp = postJSON(t, env.app, "/todos/"+todos[0].ID+"/resolve", map[string]any{
		"outcome":     "approved",
		"resolved_by": "bob",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetPendingTodos_RequiresAssignee(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/todos/", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
