// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dbmesh/ticketflow/pkg/channels/gochannel"
	"github.com/dbmesh/ticketflow/pkg/channels/kafka"
	"github.com/dbmesh/ticketflow/pkg/eventbus"
	"go.opentelemetry.io/otel/trace"
)

// NewEventBus creates an event bus instance based on the provider. A nil
// tracer leaves consumption untraced.
func NewEventBus(provider, serviceName string, logger *slog.Logger, tracer trace.Tracer) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	var bus eventbus.EventBus

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		bus = eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		bus = eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}

	if tracer != nil {
		if wb, ok := bus.(*eventbus.WatermillEventBus); ok {
			wb.SetTracer(tracer)
		}
	}

	return bus
}
