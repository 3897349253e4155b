package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// TicketRepository handles ticket-related database operations.
type TicketRepository struct {
	db     *sql.DB
	logger *slog.Logger
	flows  *FlowRepository
}

const ticketColumns = `
	id
  , type
  , biz_id
  , requester
  , details
  , status
  , remark
  , blocked_until
  , created_at
  , updated_at
`

// CreateWithFlows inserts the ticket and its flow sequence in one
// transaction so partial construction is never observable.
func (r *TicketRepository) CreateWithFlows(ctx context.Context, ticket *models.Ticket, flows []*models.Flow) error {
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	details, err := json.Marshal(ticket.Details)
	if err != nil {
		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO tickets (id, type, biz_id, requester, details, status, remark, blocked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ticket.ID, ticket.Type, ticket.BizID, ticket.Requester, details,
		ticket.Status, ticket.Remark, ticket.BlockedUntil, ticket.CreatedAt, ticket.UpdatedAt,
	)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	for _, flow := range flows {
		flow.CreatedAt = now
		flow.UpdatedAt = now

		err = r.flows.insertTx(ctx, transaction, flow)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewTicketError("CreateWithFlows", ticket.ID, err)
	}

	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)

	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTicketError("GetByID", id, persistence.ErrTicketNotFound)
		}

		return nil, persistence.NewTicketError("GetByID", id, err)
	}

	return ticket, nil
}

func (r *TicketRepository) List(ctx context.Context, opts persistence.ListTicketsOptions) ([]*models.Ticket, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	appendCondition := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	appendCondition("biz_id", opts.BizID)
	appendCondition("type", opts.Type)
	appendCondition("status", string(opts.Status))
	appendCondition("requester", opts.Requester)

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, opts.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, opts.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryTickets(ctx, query, args...)
}

// ListBlocked returns non-terminal tickets parked on an exclusivity conflict.
func (r *TicketRepository) ListBlocked(ctx context.Context) ([]*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE blocked_until IS NOT NULL
		  AND status NOT IN ('succeeded', 'failed', 'terminated')
		ORDER BY created_at
	`

	return r.queryTickets(ctx, query)
}

func (r *TicketRepository) Save(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()

	details, err := json.Marshal(ticket.Details)
	if err != nil {
		return persistence.NewTicketError("Save", ticket.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET details = $2, status = $3, remark = $4, blocked_until = $5, updated_at = $6
		WHERE id = $1
	`, ticket.ID, details, ticket.Status, ticket.Remark, ticket.BlockedUntil, ticket.UpdatedAt)
	if err != nil {
		return persistence.NewTicketError("Save", ticket.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTicketError("Save", ticket.ID, err)
	}

	if affected == 0 {
		return persistence.NewTicketError("Save", ticket.ID, persistence.ErrTicketNotFound)
	}

	return nil
}

func (r *TicketRepository) queryTickets(ctx context.Context, query string, args ...any) ([]*models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tickets := make([]*models.Ticket, 0)

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}

		tickets = append(tickets, ticket)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	return tickets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var (
		ticket       models.Ticket
		details      []byte
		blockedUntil sql.NullTime
	)

	err := row.Scan(
		&ticket.ID,
		&ticket.Type,
		&ticket.BizID,
		&ticket.Requester,
		&details,
		&ticket.Status,
		&ticket.Remark,
		&blockedUntil,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		err = json.Unmarshal(details, &ticket.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ticket details: %w", err)
		}
	}

	if blockedUntil.Valid {
		t := blockedUntil.Time
		ticket.BlockedUntil = &t
	}

	return &ticket, nil
}
