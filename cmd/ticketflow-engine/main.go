package main

import (
	"context"
	"os"
	"time"

	"github.com/dbmesh/ticketflow/pkg/cmd"
	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/log"
	"github.com/dbmesh/ticketflow/pkg/otelhelper"
	"github.com/dbmesh/ticketflow/pkg/todo"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:                  "ticketflow-engine",
		Usage:                 "Start the worker that advances tickets through their flows",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often due timers fire and parked tickets retry",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "max-auto-retries",
				Usage:   "Automatic retry cap for flows that do not set their own",
				Value:   3,
				Sources: cli.EnvVars("MAX_AUTO_RETRIES"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}, clientFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("ticketflow-engine", command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("ticketflow-engine").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing TicketFlow Engine")

			tracer, err := otelhelper.NewTracer(ctx, "ticketflow-engine")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)

				tracer = nil
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "ticketflow-engine", logger, tracer)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			todos := todo.NewManager(persistence, eventBus, logger)

			e := engine.NewEngine(
				persistence,
				cmd.NewGuard(command.String("redis-url")),
				cmd.NewExecutors(clientConfig(command), todos, logger),
				todos,
				eventBus,
				logger,
				engine.Config{
					MaxAutoRetries: command.Int("max-auto-retries"),
					SweepInterval:  command.Duration("sweep-interval"),
				},
			)

			worker := NewWorker(workerID, e, eventBus, logger)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start engine worker", "error", err)
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
