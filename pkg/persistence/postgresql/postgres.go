// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements persistence.Persistence using PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	tickets *TicketRepository
	flows   *FlowRepository
	todos   *TodoRepository
	records *OperateRecordRepository
}

// NewPersistence opens the database, runs migrations, and wires repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run ticketflow migrations: %w", err)
	}

	repoLogger := logger.With("component", "postgres_persistence")

	p := &Persistence{
		db:     database,
		logger: repoLogger,
	}
	p.flows = &FlowRepository{db: database, logger: repoLogger}
	p.tickets = &TicketRepository{db: database, logger: repoLogger, flows: p.flows}
	p.todos = &TodoRepository{db: database, logger: repoLogger}
	p.records = &OperateRecordRepository{db: database, logger: repoLogger}

	logger.InfoContext(ctx, "PostgreSQL persistence initialized")

	return p, nil
}

func (p *Persistence) Tickets() persistence.TicketRepository { return p.tickets }

func (p *Persistence) Flows() persistence.FlowRepository { return p.flows }

func (p *Persistence) Todos() persistence.TodoRepository { return p.todos }

func (p *Persistence) OperateRecords() persistence.OperateRecordRepository { return p.records }

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}
