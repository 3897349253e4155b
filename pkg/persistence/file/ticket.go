package file

import (
	"context"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// TicketRepository handles ticket storage in the tickets.json collection.
type TicketRepository struct {
	p     *Persistence
	items map[string]*models.Ticket
}

func (r *TicketRepository) load() error {
	return r.p.readCollection("tickets", &r.items)
}

func (r *TicketRepository) flush() error {
	return r.p.writeCollection("tickets", r.items)
}

// CreateWithFlows persists the ticket and its flow sequence under one lock.
// If any write fails, the in-memory state is reverted so partial
// construction is never observable.
func (r *TicketRepository) CreateWithFlows(_ context.Context, ticket *models.Ticket, flows []*models.Flow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, exists := r.items[ticket.ID]; exists {
		return persistence.NewTicketError("CreateWithFlows", ticket.ID, persistence.ErrTicketAlreadyExists)
	}

	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	r.items[ticket.ID] = ticket
	for _, flow := range flows {
		flow.CreatedAt = now
		flow.UpdatedAt = now
		r.p.flows.items[flow.ID] = flow
	}

	if err := r.flush(); err != nil {
		r.revert(ticket, flows)

		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	if err := r.p.flows.flush(); err != nil {
		r.revert(ticket, flows)
		_ = r.flush()

		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	return nil
}

func (r *TicketRepository) revert(ticket *models.Ticket, flows []*models.Flow) {
	delete(r.items, ticket.ID)
	for _, flow := range flows {
		delete(r.p.flows.items, flow.ID)
	}
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*models.Ticket, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ticket, exists := r.items[id]
	if !exists {
		return nil, persistence.NewTicketError("GetByID", id, persistence.ErrTicketNotFound)
	}

	copied := *ticket

	return &copied, nil
}

func (r *TicketRepository) List(_ context.Context, opts persistence.ListTicketsOptions) ([]*models.Ticket, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	matched := make([]*models.Ticket, 0, len(r.items))

	for _, ticket := range r.items {
		if opts.BizID != "" && ticket.BizID != opts.BizID {
			continue
		}

		if opts.Type != "" && ticket.Type != opts.Type {
			continue
		}

		if opts.Status != "" && ticket.Status != opts.Status {
			continue
		}

		if opts.Requester != "" && ticket.Requester != opts.Requester {
			continue
		}

		copied := *ticket
		matched = append(matched, &copied)
	}

	sortTicketsByCreatedAtDesc(matched)

	return paginate(matched, opts.Offset, opts.Limit), nil
}

// ListBlocked returns tickets parked on an exclusivity conflict.
func (r *TicketRepository) ListBlocked(_ context.Context) ([]*models.Ticket, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	blocked := make([]*models.Ticket, 0)

	for _, ticket := range r.items {
		if ticket.BlockedUntil != nil && !ticket.Status.IsTerminal() {
			copied := *ticket
			blocked = append(blocked, &copied)
		}
	}

	sortTicketsByCreatedAtDesc(blocked)

	return blocked, nil
}

func (r *TicketRepository) Save(_ context.Context, ticket *models.Ticket) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, exists := r.items[ticket.ID]; !exists {
		return persistence.NewTicketError("Save", ticket.ID, persistence.ErrTicketNotFound)
	}

	ticket.UpdatedAt = time.Now().UTC()
	copied := *ticket
	r.items[ticket.ID] = &copied

	return r.flush()
}
