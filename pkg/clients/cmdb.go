package clients

import (
	"context"
	"log/slog"
	"net/http"
)

// HTTPCMDBClient reads resource metadata from the configuration management
// database.
type HTTPCMDBClient struct {
	caller *httpCaller
}

func NewCMDBClient(baseURL, token string, logger *slog.Logger) *HTTPCMDBClient {
	return &HTTPCMDBClient{
		caller: newHTTPCaller(baseURL, token, logger, "cmdb_client"),
	}
}

func (c *HTTPCMDBClient) GetResource(ctx context.Context, resourceID string) (*ResourceInfo, error) {
	var info ResourceInfo

	err := c.caller.doJSON(ctx, http.MethodGet, "/api/v1/resources/"+resourceID, nil, &info)
	if err != nil {
		return nil, err
	}

	return &info, nil
}
