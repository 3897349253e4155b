// Package main provides the TicketFlow engine worker: it consumes ticket
// events from the bus and runs the periodic sweeper.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbmesh/ticketflow/pkg/engine"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
)

type Worker struct {
	id       string
	engine   *engine.Engine
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewWorker(id string, e *engine.Engine, eventBus eventbus.EventBus, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		engine:   e,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Start binds the engine to the bus, starts the sweeper, and blocks until
// the process receives an interrupt.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting engine worker")

	err := w.engine.Bind(w.eventBus)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	sweeper := engine.NewSweeper(w.engine, w.logger)

	err = sweeper.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Engine worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down engine worker...")
	sweeper.Stop()

	return nil
}
