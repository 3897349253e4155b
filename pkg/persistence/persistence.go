// Package persistence provides the data storage abstraction layer for
// tickets, flows, todos, and exclusivity operate records.
package persistence

import (
	"context"

	"github.com/dbmesh/ticketflow/pkg/models"
)

// Persistence is the root accessor implemented by each storage backend.
type Persistence interface {
	Tickets() TicketRepository
	Flows() FlowRepository
	Todos() TodoRepository
	OperateRecords() OperateRecordRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListTicketsOptions filters and paginates ticket listings.
type ListTicketsOptions struct {
	BizID     string
	Type      string
	Status    models.TicketStatus
	Requester string
	Limit     int
	Offset    int
}

// TicketRepository stores tickets. CreateWithFlows must be atomic: either
// the ticket and every flow are persisted, or nothing is.
type TicketRepository interface {
	CreateWithFlows(ctx context.Context, ticket *models.Ticket, flows []*models.Flow) error
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	List(ctx context.Context, opts ListTicketsOptions) ([]*models.Ticket, error)
	ListBlocked(ctx context.Context) ([]*models.Ticket, error)
	Save(ctx context.Context, ticket *models.Ticket) error
}

// FlowRepository stores flows. ListByTicket returns flows ordered by
// position ascending.
type FlowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	ListByTicket(ctx context.Context, ticketID string) ([]*models.Flow, error)
	ListDueTimers(ctx context.Context) ([]*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
}

// TodoRepository stores human-actionable todos.
type TodoRepository interface {
	GetByID(ctx context.Context, id string) (*models.Todo, error)
	ListByFlow(ctx context.Context, flowID string) ([]*models.Todo, error)
	ListPending(ctx context.Context, assignee string) ([]*models.Todo, error)
	Save(ctx context.Context, todo *models.Todo) error
}

// OperateRecordRepository stores the audit rows mirroring guard locks.
type OperateRecordRepository interface {
	Save(ctx context.Context, record *models.OperateRecord) error
	ActiveByResource(ctx context.Context, resourceID string) (*models.OperateRecord, error)
	ListByTicket(ctx context.Context, ticketID string) ([]*models.OperateRecord, error)
	ReleaseByFlow(ctx context.Context, ticketID, flowID string) error
}
