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

// TodoRepository handles todo-related database operations.
type TodoRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const todoColumns = `
	id
  , flow_id
  , ticket_id
  , kind
  , status
  , assignees
  , outcome
  , resolved_by
  , resolved_at
  , created_at
  , updated_at
`

func (r *TodoRepository) GetByID(ctx context.Context, id string) (*models.Todo, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = $1`, id)

	todo, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTodoNotFound
		}

		return nil, fmt.Errorf("failed to scan todo %s: %w", id, err)
	}

	return todo, nil
}

func (r *TodoRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE flow_id = $1 ORDER BY created_at`

	return r.queryTodos(ctx, query, flowID)
}

// ListPending returns open todos, optionally filtered to one assignee.
func (r *TodoRepository) ListPending(ctx context.Context, assignee string) ([]*models.Todo, error) {
	if assignee == "" {
		query := `SELECT ` + todoColumns + ` FROM todos WHERE status = $1 ORDER BY created_at`

		return r.queryTodos(ctx, query, models.TodoStatusPending)
	}

	query := `
		SELECT ` + todoColumns + `
		FROM todos
		WHERE status = $1 AND assignees @> $2
		ORDER BY created_at
	`

	assigneeJSON, err := json.Marshal([]string{assignee})
	if err != nil {
		return nil, fmt.Errorf("failed to encode assignee filter: %w", err)
	}

	return r.queryTodos(ctx, query, models.TodoStatusPending, assigneeJSON)
}

func (r *TodoRepository) Save(ctx context.Context, todo *models.Todo) error {
	now := time.Now().UTC()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}

	todo.UpdatedAt = now

	assignees, err := json.Marshal(todo.Assignees)
	if err != nil {
		return fmt.Errorf("failed to encode todo assignees: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO todos (id, flow_id, ticket_id, kind, status, assignees, outcome, resolved_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at,
			updated_at = EXCLUDED.updated_at
	`,
		todo.ID, todo.FlowID, todo.TicketID, todo.Kind, todo.Status, assignees,
		todo.Outcome, todo.ResolvedBy, todo.ResolvedAt, todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save todo %s: %w", todo.ID, err)
	}

	return nil
}

func (r *TodoRepository) queryTodos(ctx context.Context, query string, args ...any) ([]*models.Todo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	todos := make([]*models.Todo, 0)

	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}

		todos = append(todos, todo)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}

	return todos, nil
}

func scanTodo(row rowScanner) (*models.Todo, error) {
	var (
		todo       models.Todo
		assignees  []byte
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&todo.ID,
		&todo.FlowID,
		&todo.TicketID,
		&todo.Kind,
		&todo.Status,
		&assignees,
		&todo.Outcome,
		&todo.ResolvedBy,
		&resolvedAt,
		&todo.CreatedAt,
		&todo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(assignees) > 0 {
		err = json.Unmarshal(assignees, &todo.Assignees)
		if err != nil {
			return nil, fmt.Errorf("failed to decode todo assignees: %w", err)
		}
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		todo.ResolvedAt = &t
	}

	return &todo, nil
}
