package clients

import (
	"context"
	"log/slog"
	"net/http"
)

// HTTPITSMClient talks to the ITSM approval service over its REST API.
type HTTPITSMClient struct {
	caller *httpCaller
}

func NewITSMClient(baseURL, token string, logger *slog.Logger) *HTTPITSMClient {
	return &HTTPITSMClient{
		caller: newHTTPCaller(baseURL, token, logger, "itsm_client"),
	}
}

type createApprovalResponse struct {
	SheetID string `json:"sheet_id"`
}

// CreateApproval opens an approval sheet and returns its ID. The ITSM system
// reports the decision later through the callback webhook.
func (c *HTTPITSMClient) CreateApproval(ctx context.Context, req ApprovalRequest) (string, error) {
	var resp createApprovalResponse

	err := c.caller.doJSON(ctx, http.MethodPost, "/api/v1/approvals", req, &resp)
	if err != nil {
		return "", err
	}

	return resp.SheetID, nil
}

func (c *HTTPITSMClient) CancelApproval(ctx context.Context, sheetID string) error {
	return c.caller.doJSON(ctx, http.MethodPost, "/api/v1/approvals/"+sheetID+"/cancel", nil, nil)
}
