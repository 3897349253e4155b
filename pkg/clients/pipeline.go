package clients

import (
	"context"
	"log/slog"
	"net/http"
)

// HTTPPipelineClient triggers and cancels runs on the internal pipeline
// runner.
type HTTPPipelineClient struct {
	caller *httpCaller
}

func NewPipelineClient(baseURL, token string, logger *slog.Logger) *HTTPPipelineClient {
	return &HTTPPipelineClient{
		caller: newHTTPCaller(baseURL, token, logger, "pipeline_client"),
	}
}

type triggerRunResponse struct {
	RunID string `json:"run_id"`
}

func (c *HTTPPipelineClient) TriggerRun(ctx context.Context, req PipelineRequest) (string, error) {
	var resp triggerRunResponse

	err := c.caller.doJSON(ctx, http.MethodPost, "/api/v1/runs", req, &resp)
	if err != nil {
		return "", err
	}

	return resp.RunID, nil
}

func (c *HTTPPipelineClient) CancelRun(ctx context.Context, runID string) error {
	return c.caller.doJSON(ctx, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", nil, nil)
}
