package todo

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/models"
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

func newTestManager(t *testing.T) (*Manager, *file.Persistence, *recordingPublisher) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return NewManager(store, publisher, logger), store, publisher
}

func TestRaise(t *testing.T) {
	m, store, publisher := newTestManager(t)
	ctx := context.Background()

	raised, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusPending, raised.Status)

	pending, err := store.Todos().ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.Len(t, publisher.published, 1)
	event, ok := publisher.published[0].(events.TodoRaised)
	require.True(t, ok)
	assert.Equal(t, raised.ID, event.TodoID)
	assert.Equal(t, []string{"bob"}, event.Assignees)
}

func TestResolve(t *testing.T) {
	m, _, publisher := newTestManager(t)
	ctx := context.Background()

	raised, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)

	resolved, cleared, err := m.Resolve(ctx, raised.ID, models.TodoOutcomeApproved, "bob")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Equal(t, models.TodoStatusDone, resolved.Status)
	assert.Equal(t, "bob", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	var resolvedEvent *events.TodoResolved

	for _, event := range publisher.published {
		if e, ok := event.(events.TodoResolved); ok {
			resolvedEvent = &e
		}
	}

	require.NotNil(t, resolvedEvent)
	assert.Equal(t, models.TodoOutcomeApproved, resolvedEvent.Outcome)
}

func TestResolve_NotAssignee(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	raised, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)

	_, _, err = m.Resolve(ctx, raised.ID, models.TodoOutcomeApproved, "mallory")
	assert.ErrorIs(t, err, ErrNotAssignee)
}

func TestResolve_AlreadyResolved(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	raised, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)

	_, _, err = m.Resolve(ctx, raised.ID, models.TodoOutcomeApproved, "bob")
	require.NoError(t, err)

	_, _, err = m.Resolve(ctx, raised.ID, models.TodoOutcomeRejected, "bob")
	assert.ErrorIs(t, err, ErrTodoAlreadyResolved)
}

func TestResolve_FlowClearedOnlyWhenLastTodoResolves(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)

	second, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"carol"})
	require.NoError(t, err)

	_, cleared, err := m.Resolve(ctx, first.ID, models.TodoOutcomeApproved, "bob")
	require.NoError(t, err)
	assert.False(t, cleared)

	_, cleared, err = m.Resolve(ctx, second.ID, models.TodoOutcomeApproved, "carol")
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestCancelByFlow(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	raised, err := m.Raise(ctx, "ticket-1", "flow-1", models.TodoKindConfirm, []string{"bob"})
	require.NoError(t, err)

	require.NoError(t, m.CancelByFlow(ctx, "flow-1"))

	stored, err := store.Todos().GetByID(ctx, raised.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusTerminated, stored.Status)

	pending, err := store.Todos().ListPending(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
