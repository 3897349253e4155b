package eventbus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dbmesh/ticketflow/pkg/events"
	"github.com/dbmesh/ticketflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		tracer:        noop.NewTracerProvider().Tracer("eventbus"),
	}
}

// SetTracer replaces the no-op tracer so consumed messages produce spans.
func (eb *WatermillEventBus) SetTracer(tracer trace.Tracer) {
	eb.tracer = tracer
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish serializes the event and keys the message by ticket ID so a
// partitioned transport processes each ticket's events in order.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			msgCtx, span := otelhelper.StartSpan(ctx, eb.tracer, "eventbus consume",
				attribute.String(otelhelper.EventTypeKey, string(eventType)),
				attribute.String(otelhelper.TicketIDKey, msg.Metadata.Get(events.EventMetadataKey)),
			)

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				span.End()
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				otelhelper.SetError(span, errors.New("unknown event type"))
				span.End()
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			err = handler(msgCtx, event)
			if err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			span.End()
			msg.Ack()
		}
	}()

	return nil
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.TicketCreatedEvent:
		return &events.TicketCreated{}
	case events.TicketFinishedEvent:
		return &events.TicketFinished{}
	case events.TicketFailedEvent:
		return &events.TicketFailed{}
	case events.TicketTerminatedEvent:
		return &events.TicketTerminated{}
	case events.TicketBlockedEvent:
		return &events.TicketBlocked{}
	case events.FlowDispatchedEvent:
		return &events.FlowDispatched{}
	case events.FlowCallbackReceivedEvent:
		return &events.FlowCallbackReceived{}
	case events.FlowFinishedEvent:
		return &events.FlowFinished{}
	case events.FlowFailedEvent:
		return &events.FlowFailed{}
	case events.TodoRaisedEvent:
		return &events.TodoRaised{}
	case events.TodoResolvedEvent:
		return &events.TodoResolved{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
