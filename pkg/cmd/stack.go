package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/builder"
	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/config"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"github.com/dbmesh/ticketflow/pkg/executor"
	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/todo"
)

// ClientConfig carries the endpoints of the external systems flows talk to.
type ClientConfig struct {
	ITSMURL       string
	ITSMToken     string
	PipelineURL   string
	PipelineToken string
	PoolURL       string
	PoolToken     string
	CMDBURL       string
	CMDBToken     string
}

// NewExecutors builds the full executor set from the client endpoints.
func NewExecutors(cfg ClientConfig, todos *todo.Manager, logger *slog.Logger) *executor.Set {
	return executor.NewSet(
		executor.NewITSMExecutor(clients.NewITSMClient(cfg.ITSMURL, cfg.ITSMToken, logger), logger),
		executor.NewPipelineExecutor(clients.NewPipelineClient(cfg.PipelineURL, cfg.PipelineToken, logger), logger),
		executor.NewResourceExecutor(clients.NewResourcePoolClient(cfg.PoolURL, cfg.PoolToken, logger), logger),
		executor.NewPauseExecutor(todos, logger),
		executor.NewTimerExecutor(logger),
	)
}

// NewBuilder registers the built-in recipes plus any declared in the YAML
// file at recipesPath, and, when a CMDB endpoint is configured, enables
// resource existence checks.
func NewBuilder(p persistence.Persistence, publisher eventbus.EventPublisher, cfg ClientConfig, recipesPath string, logger *slog.Logger) *builder.Builder {
	b := builder.NewBuilder(p, publisher, logger)

	if cfg.CMDBURL != "" {
		b.WithCMDB(clients.NewCMDBClient(cfg.CMDBURL, cfg.CMDBToken, logger))
	}

	recipes := builder.BuiltinRecipes()

	if recipesPath != "" {
		declared, err := config.LoadRecipes(recipesPath)
		if err != nil {
			panic(fmt.Errorf("failed to load recipes: %w", err))
		}

		recipes = append(recipes, declared...)
	}

	for _, recipe := range recipes {
		err := b.Register(recipe)
		if err != nil {
			panic(err)
		}
	}

	return b
}
