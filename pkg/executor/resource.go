package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/models"
)

// ResourceExecutor places capacity orders on the resource pool.
type ResourceExecutor struct {
	client clients.ResourcePoolClient
	logger *slog.Logger
}

func NewResourceExecutor(client clients.ResourcePoolClient, logger *slog.Logger) *ResourceExecutor {
	return &ResourceExecutor{
		client: client,
		logger: logger.With("module", "resource_executor"),
	}
}

func (e *ResourceExecutor) Kind() models.FlowKind {
	return models.FlowKindResourceApply
}

func (e *ResourceExecutor) Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	spec := mapField(flow.Details, "spec")
	if spec == nil {
		spec = flow.Details
	}

	orderID, err := e.client.Apply(ctx, clients.ResourceApplyRequest{
		TicketID: ticket.ID,
		Spec:     spec,
	})
	if err != nil {
		return fmt.Errorf("failed to place resource order: %w", err)
	}

	flow.ExternalRef = orderID

	e.logger.InfoContext(ctx, "Placed resource order", "ticket_id", ticket.ID, "order_id", orderID)

	return nil
}

func (e *ResourceExecutor) InterpretCallback(
	_ context.Context,
	_ *models.Flow,
	payload map[string]any,
) (Outcome, error) {
	status, err := stringField(payload, "status")
	if err != nil {
		return Outcome{}, err
	}

	switch status {
	case "fulfilled":
		return Outcome{
			Status: models.FlowStatusSucceeded,
			Output: mapField(payload, "resources"),
		}, nil
	case "failed":
		message, _ := payload["error"].(string)
		if message == "" {
			message = "resource order failed"
		}

		return Outcome{Status: models.FlowStatusFailed, Error: message}, nil
	default:
		return Outcome{Status: models.FlowStatusRunning}, nil
	}
}
