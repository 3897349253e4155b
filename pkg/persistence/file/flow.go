package file

import (
	"context"
	"sort"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// FlowRepository handles flow storage in the flows.json collection.
type FlowRepository struct {
	p     *Persistence
	items map[string]*models.Flow
}

func (r *FlowRepository) load() error {
	return r.p.readCollection("flows", &r.items)
}

func (r *FlowRepository) flush() error {
	return r.p.writeCollection("flows", r.items)
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flow, exists := r.items[id]
	if !exists {
		return nil, &persistence.FlowError{Op: "GetByID", FlowID: id, Err: persistence.ErrFlowNotFound}
	}

	copied := *flow

	return &copied, nil
}

// ListByTicket returns the ticket's flows ordered by sequence position.
func (r *FlowRepository) ListByTicket(_ context.Context, ticketID string) ([]*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	flows := make([]*models.Flow, 0)

	for _, flow := range r.items {
		if flow.TicketID == ticketID {
			copied := *flow
			flows = append(flows, &copied)
		}
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].Position < flows[j].Position
	})

	return flows, nil
}

// ListDueTimers returns running timer flows whose due time has passed.
func (r *FlowRepository) ListDueTimers(_ context.Context) ([]*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	now := time.Now().UTC()
	due := make([]*models.Flow, 0)

	for _, flow := range r.items {
		if flow.Kind != models.FlowKindTimerDelay || flow.Status != models.FlowStatusRunning {
			continue
		}

		if flow.DueAt != nil && !flow.DueAt.After(now) {
			copied := *flow
			due = append(due, &copied)
		}
	}

	return due, nil
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, exists := r.items[flow.ID]; !exists {
		return &persistence.FlowError{Op: "Save", TicketID: flow.TicketID, FlowID: flow.ID, Err: persistence.ErrFlowNotFound}
	}

	flow.UpdatedAt = time.Now().UTC()
	copied := *flow
	r.items[flow.ID] = &copied

	return r.flush()
}
