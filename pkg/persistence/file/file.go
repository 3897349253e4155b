// Package file provides a JSON-on-disk persistence implementation, intended
// for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/dbmesh/ticketflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of per-collection
// JSON files under a root directory. A single lock serializes writers, which
// also gives CreateWithFlows its atomicity.
type Persistence struct {
	root string
	mu   sync.RWMutex

	tickets *TicketRepository
	flows   *FlowRepository
	todos   *TodoRepository
	records *OperateRecordRepository
}

// NewPersistence creates the root directory if needed and loads existing data.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(cleanRoot, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	p := &Persistence{root: cleanRoot}
	p.tickets = &TicketRepository{p: p, items: make(map[string]*models.Ticket)}
	p.flows = &FlowRepository{p: p, items: make(map[string]*models.Flow)}
	p.todos = &TodoRepository{p: p, items: make(map[string]*models.Todo)}
	p.records = &OperateRecordRepository{p: p, items: make(map[string]*models.OperateRecord)}

	if err := p.tickets.load(); err != nil {
		return nil, err
	}

	if err := p.flows.load(); err != nil {
		return nil, err
	}

	if err := p.todos.load(); err != nil {
		return nil, err
	}

	if err := p.records.load(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Persistence) Tickets() persistence.TicketRepository { return p.tickets }

func (p *Persistence) Flows() persistence.FlowRepository { return p.flows }

func (p *Persistence) Todos() persistence.TodoRepository { return p.todos }

func (p *Persistence) OperateRecords() persistence.OperateRecordRepository { return p.records }

// HealthCheck verifies the root directory is still accessible.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", p.root)
	}

	return nil
}

// Close flushes nothing; every write already hits disk.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// readCollection loads a JSON collection file into out. A missing file is
// treated as an empty collection.
func (p *Persistence) readCollection(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(p.root, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read %s collection: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s collection: %w", name, err)
	}

	return nil
}

// writeCollection persists a collection atomically via rename.
func (p *Persistence) writeCollection(name string, in any) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s collection: %w", name, err)
	}

	tmp := filepath.Join(p.root, name+".json.tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s collection: %w", name, err)
	}

	if err := os.Rename(tmp, filepath.Join(p.root, name+".json")); err != nil {
		return fmt.Errorf("failed to replace %s collection: %w", name, err)
	}

	return nil
}
