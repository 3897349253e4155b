package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const flowColumns = `
	id
  , ticket_id
  , kind
  , position
  , status
  , external_ref
  , details
  , output
  , error
  , retry_policy
  , max_retries
  , attempts
  , skippable
  , resource_ids
  , due_at
  , created_at
  , updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTx inserts a flow inside the ticket-construction transaction.
func (r *FlowRepository) insertTx(ctx context.Context, tx execer, flow *models.Flow) error {
	details, output, resourceIDs, err := marshalFlowBlobs(flow)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flows (
			id, ticket_id, kind, position, status, external_ref, details, output,
			error, retry_policy, max_retries, attempts, skippable, resource_ids,
			due_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		flow.ID, flow.TicketID, flow.Kind, flow.Position, flow.Status, flow.ExternalRef,
		details, output, flow.Error, flow.RetryPolicy, flow.MaxRetries, flow.Attempts,
		flow.Skippable, resourceIDs, flow.DueAt, flow.CreatedAt, flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flow %s: %w", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.FlowError{Op: "GetByID", FlowID: id, Err: persistence.ErrFlowNotFound}
		}

		return nil, &persistence.FlowError{Op: "GetByID", FlowID: id, Err: err}
	}

	return flow, nil
}

func (r *FlowRepository) ListByTicket(ctx context.Context, ticketID string) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE ticket_id = $1 ORDER BY position`

	return r.queryFlows(ctx, query, ticketID)
}

// ListDueTimers returns running timer flows whose due time has passed.
func (r *FlowRepository) ListDueTimers(ctx context.Context) ([]*models.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE kind = $1 AND status = $2 AND due_at IS NOT NULL AND due_at <= $3
		ORDER BY due_at
	`

	return r.queryFlows(ctx, query, models.FlowKindTimerDelay, models.FlowStatusRunning, time.Now().UTC())
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	flow.UpdatedAt = time.Now().UTC()

	details, output, _, err := marshalFlowBlobs(flow)
	if err != nil {
		return &persistence.FlowError{Op: "Save", TicketID: flow.TicketID, FlowID: flow.ID, Err: err}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE flows
		SET status = $2, external_ref = $3, details = $4, output = $5, error = $6,
		    attempts = $7, due_at = $8, updated_at = $9
		WHERE id = $1
	`,
		flow.ID, flow.Status, flow.ExternalRef, details, output, flow.Error,
		flow.Attempts, flow.DueAt, flow.UpdatedAt,
	)
	if err != nil {
		return &persistence.FlowError{Op: "Save", TicketID: flow.TicketID, FlowID: flow.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.FlowError{Op: "Save", TicketID: flow.TicketID, FlowID: flow.ID, Err: err}
	}

	if affected == 0 {
		return &persistence.FlowError{Op: "Save", TicketID: flow.TicketID, FlowID: flow.ID, Err: persistence.ErrFlowNotFound}
	}

	return nil
}

func (r *FlowRepository) queryFlows(ctx context.Context, query string, args ...any) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func marshalFlowBlobs(flow *models.Flow) (details, output, resourceIDs []byte, err error) {
	details, err = json.Marshal(flow.Details)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode flow details: %w", err)
	}

	if flow.Output != nil {
		output, err = json.Marshal(flow.Output)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode flow output: %w", err)
		}
	}

	if flow.ResourceIDs != nil {
		resourceIDs, err = json.Marshal(flow.ResourceIDs)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode flow resource ids: %w", err)
		}
	}

	return details, output, resourceIDs, nil
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow        models.Flow
		details     []byte
		output      []byte
		resourceIDs []byte
		dueAt       sql.NullTime
	)

	err := row.Scan(
		&flow.ID,
		&flow.TicketID,
		&flow.Kind,
		&flow.Position,
		&flow.Status,
		&flow.ExternalRef,
		&details,
		&output,
		&flow.Error,
		&flow.RetryPolicy,
		&flow.MaxRetries,
		&flow.Attempts,
		&flow.Skippable,
		&resourceIDs,
		&dueAt,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		err = json.Unmarshal(details, &flow.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to decode flow details: %w", err)
		}
	}

	if len(output) > 0 {
		err = json.Unmarshal(output, &flow.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to decode flow output: %w", err)
		}
	}

	if len(resourceIDs) > 0 {
		err = json.Unmarshal(resourceIDs, &flow.ResourceIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to decode flow resource ids: %w", err)
		}
	}

	if dueAt.Valid {
		t := dueAt.Time
		flow.DueAt = &t
	}

	return &flow, nil
}
