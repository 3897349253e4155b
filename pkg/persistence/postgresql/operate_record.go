package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
)

// OperateRecordRepository handles exclusivity audit rows.
type OperateRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const operateRecordColumns = `
	id
  , ticket_id
  , flow_id
  , resource_id
  , ticket_type
  , active
  , created_at
  , released_at
`

func (r *OperateRecordRepository) Save(ctx context.Context, record *models.OperateRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operate_records (id, ticket_id, flow_id, resource_id, ticket_type, active, created_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET active = EXCLUDED.active, released_at = EXCLUDED.released_at
	`,
		record.ID, record.TicketID, record.FlowID, record.ResourceID,
		record.TicketType, record.Active, record.CreatedAt, record.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operate record %s: %w", record.ID, err)
	}

	return nil
}

// ActiveByResource returns the active record for a resource, or nil.
func (r *OperateRecordRepository) ActiveByResource(ctx context.Context, resourceID string) (*models.OperateRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+operateRecordColumns+`
		FROM operate_records
		WHERE resource_id = $1 AND active
	`, resourceID)

	record, err := scanOperateRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan operate record for resource %s: %w", resourceID, err)
	}

	return record, nil
}

func (r *OperateRecordRepository) ListByTicket(ctx context.Context, ticketID string) ([]*models.OperateRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+operateRecordColumns+`
		FROM operate_records
		WHERE ticket_id = $1
		ORDER BY created_at
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operate records: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.OperateRecord, 0)

	for rows.Next() {
		record, err := scanOperateRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operate record: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating operate records: %w", err)
	}

	return records, nil
}

// ReleaseByFlow deactivates every record held by the given flow.
func (r *OperateRecordRepository) ReleaseByFlow(ctx context.Context, ticketID, flowID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE operate_records
		SET active = FALSE, released_at = $3
		WHERE ticket_id = $1 AND flow_id = $2 AND active
	`, ticketID, flowID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to release operate records for flow %s: %w", flowID, err)
	}

	return nil
}

func scanOperateRecord(row rowScanner) (*models.OperateRecord, error) {
	var (
		record     models.OperateRecord
		releasedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.TicketID,
		&record.FlowID,
		&record.ResourceID,
		&record.TicketType,
		&record.Active,
		&record.CreatedAt,
		&releasedAt,
	)
	if err != nil {
		return nil, err
	}

	if releasedAt.Valid {
		t := releasedAt.Time
		record.ReleasedAt = &t
	}

	return &record, nil
}
