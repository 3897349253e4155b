package file

import (
	"context"
	"slices"
	"time"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// TodoRepository handles todo storage in the todos.json collection.
type TodoRepository struct {
	p     *Persistence
	items map[string]*models.Todo
}

func (r *TodoRepository) load() error {
	return r.p.readCollection("todos", &r.items)
}

func (r *TodoRepository) flush() error {
	return r.p.writeCollection("todos", r.items)
}

func (r *TodoRepository) GetByID(_ context.Context, id string) (*models.Todo, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	todo, exists := r.items[id]
	if !exists {
		return nil, persistence.ErrTodoNotFound
	}

	copied := *todo

	return &copied, nil
}

func (r *TodoRepository) ListByFlow(_ context.Context, flowID string) ([]*models.Todo, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	todos := make([]*models.Todo, 0)

	for _, todo := range r.items {
		if todo.FlowID == flowID {
			copied := *todo
			todos = append(todos, &copied)
		}
	}

	sortTodosByCreatedAt(todos)

	return todos, nil
}

// ListPending returns open todos, optionally filtered to one assignee.
func (r *TodoRepository) ListPending(_ context.Context, assignee string) ([]*models.Todo, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	todos := make([]*models.Todo, 0)

	for _, todo := range r.items {
		if todo.Status != models.TodoStatusPending {
			continue
		}

		if assignee != "" && !slices.Contains(todo.Assignees, assignee) {
			continue
		}

		copied := *todo
		todos = append(todos, &copied)
	}

	sortTodosByCreatedAt(todos)

	return todos, nil
}

func (r *TodoRepository) Save(_ context.Context, todo *models.Todo) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}

	todo.UpdatedAt = now
	copied := *todo
	r.items[todo.ID] = &copied

	return r.flush()
}
