package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/models"
)

// PipelineExecutor triggers runs on the internal pipeline runner.
type PipelineExecutor struct {
	client clients.PipelineClient
	logger *slog.Logger
}

func NewPipelineExecutor(client clients.PipelineClient, logger *slog.Logger) *PipelineExecutor {
	return &PipelineExecutor{
		client: client,
		logger: logger.With("module", "pipeline_executor"),
	}
}

func (e *PipelineExecutor) Kind() models.FlowKind {
	return models.FlowKindInnerPipeline
}

func (e *PipelineExecutor) Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	pipeline, ok := flow.Details["pipeline"].(string)
	if !ok || pipeline == "" {
		return fmt.Errorf("flow %s has no pipeline configured: %w", flow.ID, ErrFlowMisconfigured)
	}

	runID, err := e.client.TriggerRun(ctx, clients.PipelineRequest{
		TicketID:   ticket.ID,
		Pipeline:   pipeline,
		Parameters: flow.Details,
	})
	if err != nil {
		return fmt.Errorf("failed to trigger pipeline run: %w", err)
	}

	flow.ExternalRef = runID

	e.logger.InfoContext(ctx, "Triggered pipeline run",
		"ticket_id", ticket.ID, "pipeline", pipeline, "run_id", runID)

	return nil
}

// Cancel aborts the pipeline run when the ticket is terminated mid-flight.
func (e *PipelineExecutor) Cancel(ctx context.Context, flow *models.Flow) error {
	e.logger.InfoContext(ctx, "Cancelling pipeline run", "flow_id", flow.ID, "run_id", flow.ExternalRef)

	return e.client.CancelRun(ctx, flow.ExternalRef)
}

func (e *PipelineExecutor) InterpretCallback(
	_ context.Context,
	_ *models.Flow,
	payload map[string]any,
) (Outcome, error) {
	status, err := stringField(payload, "status")
	if err != nil {
		return Outcome{}, err
	}

	switch status {
	case "succeeded":
		return Outcome{
			Status: models.FlowStatusSucceeded,
			Output: mapField(payload, "output"),
		}, nil
	case "failed":
		message, _ := payload["error"].(string)
		if message == "" {
			message = "pipeline run failed"
		}

		return Outcome{Status: models.FlowStatusFailed, Error: message}, nil
	default:
		return Outcome{Status: models.FlowStatusRunning}, nil
	}
}
