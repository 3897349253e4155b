package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dbmesh/ticketflow/pkg/persistence"
	"github.com/dbmesh/ticketflow/pkg/persistence/file"
	"github.com/dbmesh/ticketflow/pkg/persistence/postgresql"
)

// NewPersistence selects a backend from the database URL scheme. Anything
// that is not a postgres URL is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to postgres: %w", err))
		}

		return p
	default:
		p, err := file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
		if err != nil {
			panic(fmt.Errorf("failed to open file persistence: %w", err))
		}

		return p
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
