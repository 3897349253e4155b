package builder

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/persistence/file"
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

func newTestBuilder(t *testing.T) (*Builder, *file.Persistence, *recordingPublisher) {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	b := NewBuilder(p, publisher, logger)

	for _, recipe := range BuiltinRecipes() {
		require.NoError(t, b.Register(recipe))
	}

	return b, p, publisher
}

func deployRequest() BuildRequest {
	return BuildRequest{
		Type:      "mysql-deploy",
		BizID:     "prod-east",
		Requester: "alice",
		Details: map[string]any{
			"version": "8.0",
			"spec": map[string]any{
				"cpu":       4,
				"memory_gb": 16,
				"replicas":  3,
			},
			"resource_ids": []any{"mysql-prod-01"},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	b, p, publisher := newTestBuilder(t)
	ctx := context.Background()

	ticket, err := b.Build(ctx, deployRequest())

	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPending, ticket.Status)
	assert.Equal(t, "mysql-deploy", ticket.Type)

	flows, err := p.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, flows, 3)

	assert.Equal(t, models.FlowKindITSMApproval, flows[0].Kind)
	assert.Equal(t, models.FlowKindResourceApply, flows[1].Kind)
	assert.Equal(t, models.FlowKindInnerPipeline, flows[2].Kind)

	for i, flow := range flows {
		assert.Equal(t, i, flow.Position)
		assert.Equal(t, models.FlowStatusPending, flow.Status)
	}

	// Only the pipeline stage mutates, claiming the requested resources.
	assert.Empty(t, flows[0].ResourceIDs)
	assert.Empty(t, flows[1].ResourceIDs)
	assert.Equal(t, []string{"mysql-prod-01"}, flows[2].ResourceIDs)
	assert.Equal(t, "mysql-deploy", flows[2].Details["pipeline"])

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "ticket.created", string(publisher.published[0].GetType()))
}

func TestBuilder_BuildUnknownType(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	req := deployRequest()
	req.Type = "oracle-deploy"

	_, err := b.Build(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTicketType)
}

func TestBuilder_BuildMissingRequiredFields(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	req := deployRequest()
	req.Requester = ""

	_, err := b.Build(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTicketValidation)
}

func TestBuilder_BuildSchemaViolation(t *testing.T) {
	b, p, _ := newTestBuilder(t)
	ctx := context.Background()

	req := deployRequest()
	req.Details = map[string]any{"version": "8.0"} // spec missing

	_, err := b.Build(ctx, req)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTicketValidation)

	// Nothing may be persisted for a rejected request.
	tickets, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestBuilder_BuildDefaultsResourceToBizID(t *testing.T) {
	b, p, _ := newTestBuilder(t)
	ctx := context.Background()

	req := deployRequest()
	delete(req.Details, "resource_ids")

	ticket, err := b.Build(ctx, req)
	require.NoError(t, err)

	flows, err := p.Flows().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-east"}, flows[2].ResourceIDs)
}

func TestBuilder_RegisterRejectsEmptyRecipe(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	err := b.Register(&Recipe{Type: "empty"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecipeInvalid)
}

func TestBuilder_Types(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	types := b.Types()

	assert.ElementsMatch(t, []string{
		"mysql-deploy", "redis-scale", "kafka-restart", "mysql-delayed-drop",
	}, types)
}

// A stage whose predicate rejects the request is dropped without leaving a
// gap in flow positions, and BuildParams reshapes the stage's input.
func TestBuilder_BuildConditionalStages(t *testing.T) {
	b, p, _ := newTestBuilder(t)
	ctx := context.Background()

	require.NoError(t, b.Register(&Recipe{
		Type: "pg-failover",
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindITSMApproval,
				RetryPolicy: models.RetryPolicyManual,
				// Emergency failovers skip the approval round.
				When: func(req BuildRequest) bool {
					return req.Details["emergency"] != true
				},
			},
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyManual,
				Mutating:    true,
				Details:     map[string]any{"pipeline": "pg-failover"},
				BuildParams: func(details map[string]any) map[string]any {
					return map[string]any{
						"promote": details["replica"],
					}
				},
			},
		},
	}))

	request := func(emergency bool) BuildRequest {
		return BuildRequest{
			Type:      "pg-failover",
			BizID:     "pg-prod",
			Requester: "alice",
			Details: map[string]any{
				"emergency": emergency,
				"replica":   "pg-prod-replica-2",
			},
		}
	}

	planned, err := b.Build(ctx, request(false))
	require.NoError(t, err)

	flows, err := p.Flows().ListByTicket(ctx, planned.ID)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, models.FlowKindITSMApproval, flows[0].Kind)
	assert.Equal(t, models.FlowKindInnerPipeline, flows[1].Kind)

	emergency, err := b.Build(ctx, request(true))
	require.NoError(t, err)

	flows, err = p.Flows().ListByTicket(ctx, emergency.ID)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, models.FlowKindInnerPipeline, flows[0].Kind)
	assert.Equal(t, 0, flows[0].Position)

	// The pipeline sees only the transformed input plus static parameters.
	assert.Equal(t, "pg-prod-replica-2", flows[0].Details["promote"])
	assert.Equal(t, "pg-failover", flows[0].Details["pipeline"])
	assert.NotContains(t, flows[0].Details, "emergency")
}

// A recipe whose every stage is predicated away cannot build a ticket.
func TestBuilder_BuildAllStagesFilteredOut(t *testing.T) {
	b, p, _ := newTestBuilder(t)
	ctx := context.Background()

	require.NoError(t, b.Register(&Recipe{
		Type: "never",
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyManual,
				When:        func(BuildRequest) bool { return false },
			},
		},
	}))

	_, err := b.Build(ctx, BuildRequest{
		Type:      "never",
		BizID:     "pg-prod",
		Requester: "alice",
		Details:   map[string]any{"x": 1},
	})
	require.ErrorIs(t, err, ErrTicketValidation)

	tickets, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

type fakeCMDB struct {
	known map[string]bool
}

func (c *fakeCMDB) GetResource(_ context.Context, resourceID string) (*clients.ResourceInfo, error) {
	if !c.known[resourceID] {
		return nil, clients.ErrNotFound
	}

	return &clients.ResourceInfo{ID: resourceID}, nil
}

func TestBuilder_BuildUnknownResource(t *testing.T) {
	b, p, _ := newTestBuilder(t)
	b.WithCMDB(&fakeCMDB{known: map[string]bool{"mysql-prod-01": true}})
	ctx := context.Background()

	req := deployRequest()
	req.BizID = "no-such-cluster"

	_, err := b.Build(ctx, req)
	require.ErrorIs(t, err, ErrTicketValidation)

	tickets, err := p.Tickets().List(ctx, persistence.ListTicketsOptions{})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	req.BizID = "mysql-prod-01"
	_, err = b.Build(ctx, req)
	require.NoError(t, err)
}
