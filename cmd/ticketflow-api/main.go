package main

import (
	"context"
	"os"

	"github.com/dbmesh/ticketflow/pkg/cmd"
	"github.com/dbmesh/ticketflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	root := &cli.Command{
		Name:                  "ticketflow-api",
		Usage:                 "Serve the ticket API",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file path or postgres URL)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the exclusivity guard (in-process guard if empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "recipes-path",
				Usage:   "Path to a YAML file with additional ticket type recipes",
				Sources: cli.EnvVars("RECIPES_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}, clientFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("ticketflow-api", command.String("log-level"))

			logger := log.WithModule("ticketflow-api")
			logger.InfoContext(ctx, "Initializing TicketFlow API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "ticketflow-api", logger, nil)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				clientConfig(command),
				command.String("redis-url"),
				command.String("recipes-path"),
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "itsm-url",
			Usage:    "Base URL of the ITSM approval system",
			Required: true,
			Sources:  cli.EnvVars("ITSM_URL"),
		},
		&cli.StringFlag{
			Name:    "itsm-token",
			Usage:   "Bearer token for the ITSM approval system",
			Sources: cli.EnvVars("ITSM_TOKEN"),
		},
		&cli.StringFlag{
			Name:     "pipeline-url",
			Usage:    "Base URL of the pipeline runner",
			Required: true,
			Sources:  cli.EnvVars("PIPELINE_URL"),
		},
		&cli.StringFlag{
			Name:    "pipeline-token",
			Usage:   "Bearer token for the pipeline runner",
			Sources: cli.EnvVars("PIPELINE_TOKEN"),
		},
		&cli.StringFlag{
			Name:     "pool-url",
			Usage:    "Base URL of the resource pool",
			Required: true,
			Sources:  cli.EnvVars("POOL_URL"),
		},
		&cli.StringFlag{
			Name:    "pool-token",
			Usage:   "Bearer token for the resource pool",
			Sources: cli.EnvVars("POOL_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "cmdb-url",
			Usage:   "Base URL of the CMDB (resource checks disabled if empty)",
			Sources: cli.EnvVars("CMDB_URL"),
		},
		&cli.StringFlag{
			Name:    "cmdb-token",
			Usage:   "Bearer token for the CMDB",
			Sources: cli.EnvVars("CMDB_TOKEN"),
		},
	}
}

func clientConfig(command *cli.Command) cmd.ClientConfig {
	return cmd.ClientConfig{
		ITSMURL:       command.String("itsm-url"),
		ITSMToken:     command.String("itsm-token"),
		PipelineURL:   command.String("pipeline-url"),
		PipelineToken: command.String("pipeline-token"),
		PoolURL:       command.String("pool-url"),
		PoolToken:     command.String("pool-token"),
		CMDBURL:       command.String("cmdb-url"),
		CMDBToken:     command.String("cmdb-token"),
	}
}
