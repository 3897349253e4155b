package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dbmesh/ticketflow/pkg/clients"
	"github.com/dbmesh/ticketflow/pkg/models"
)

// ITSMExecutor opens approval sheets on the ITSM service and interprets its
// decision callbacks.
type ITSMExecutor struct {
	client clients.ITSMClient
	logger *slog.Logger
}

func NewITSMExecutor(client clients.ITSMClient, logger *slog.Logger) *ITSMExecutor {
	return &ITSMExecutor{
		client: client,
		logger: logger.With("module", "itsm_executor"),
	}
}

func (e *ITSMExecutor) Kind() models.FlowKind {
	return models.FlowKindITSMApproval
}

func (e *ITSMExecutor) Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error {
	title, _ := flow.Details["title"].(string)
	if title == "" {
		title = fmt.Sprintf("%s for %s", ticket.Type, ticket.BizID)
	}

	sheetID, err := e.client.CreateApproval(ctx, clients.ApprovalRequest{
		TicketID:   ticket.ID,
		TicketType: ticket.Type,
		Requester:  ticket.Requester,
		Title:      title,
		Details:    flow.Details,
	})
	if err != nil {
		return fmt.Errorf("failed to create approval sheet: %w", err)
	}

	flow.ExternalRef = sheetID

	e.logger.InfoContext(ctx, "Opened approval sheet", "ticket_id", ticket.ID, "sheet_id", sheetID)

	return nil
}

// Cancel closes the approval sheet when the ticket is terminated while the
// approval is still open.
func (e *ITSMExecutor) Cancel(ctx context.Context, flow *models.Flow) error {
	e.logger.InfoContext(ctx, "Cancelling approval sheet", "flow_id", flow.ID, "sheet_id", flow.ExternalRef)

	return e.client.CancelApproval(ctx, flow.ExternalRef)
}

func (e *ITSMExecutor) InterpretCallback(
	_ context.Context,
	_ *models.Flow,
	payload map[string]any,
) (Outcome, error) {
	status, err := stringField(payload, "status")
	if err != nil {
		return Outcome{}, err
	}

	switch status {
	case "approved":
		return Outcome{
			Status: models.FlowStatusSucceeded,
			Output: map[string]any{
				"approved_by": payload["approved_by"],
			},
		}, nil
	case "rejected":
		reason, _ := payload["reason"].(string)
		if reason == "" {
			reason = "approval rejected"
		}

		return Outcome{Status: models.FlowStatusFailed, Error: reason}, nil
	default:
		// Progress updates keep the flow waiting.
		return Outcome{Status: models.FlowStatusRunning}, nil
	}
}
