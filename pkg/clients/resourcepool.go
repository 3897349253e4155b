package clients

import (
	"context"
	"log/slog"
	"net/http"
)

// HTTPResourcePoolClient places capacity orders against the resource pool.
type HTTPResourcePoolClient struct {
	caller *httpCaller
}

func NewResourcePoolClient(baseURL, token string, logger *slog.Logger) *HTTPResourcePoolClient {
	return &HTTPResourcePoolClient{
		caller: newHTTPCaller(baseURL, token, logger, "resource_pool_client"),
	}
}

type applyResponse struct {
	OrderID string `json:"order_id"`
}

// Apply submits a capacity order. Fulfillment is asynchronous; the pool
// reports the outcome through the callback webhook using the order ID.
func (c *HTTPResourcePoolClient) Apply(ctx context.Context, req ResourceApplyRequest) (string, error) {
	var resp applyResponse

	err := c.caller.doJSON(ctx, http.MethodPost, "/api/v1/orders", req, &resp)
	if err != nil {
		return "", err
	}

	return resp.OrderID, nil
}
