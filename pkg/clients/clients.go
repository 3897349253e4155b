// Package clients provides HTTP clients for the external systems the engine
// drives: the ITSM approval service, the pipeline runner, the resource pool,
// and the CMDB inventory.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeoutSeconds = 30

var (
	// ErrRemoteUnavailable is returned when the remote system keeps failing
	// after all retry attempts.
	ErrRemoteUnavailable = errors.New("remote system unavailable")
	// ErrRemoteRejected is returned on a non-retryable 4xx response.
	ErrRemoteRejected = errors.New("remote system rejected the request")
	// ErrNotFound is returned when the remote system has no such entity.
	ErrNotFound = errors.New("entity not found on remote system")
)

// ApprovalRequest asks the ITSM system to open an approval sheet.
type ApprovalRequest struct {
	TicketID   string         `json:"ticket_id"`
	TicketType string         `json:"ticket_type"`
	Requester  string         `json:"requester"`
	Title      string         `json:"title"`
	Details    map[string]any `json:"details,omitempty"`
}

// PipelineRequest triggers a run of an internal operations pipeline.
type PipelineRequest struct {
	TicketID   string         `json:"ticket_id"`
	Pipeline   string         `json:"pipeline"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResourceApplyRequest asks the resource pool to fulfill a capacity order.
type ResourceApplyRequest struct {
	TicketID string         `json:"ticket_id"`
	Spec     map[string]any `json:"spec"`
}

// ResourceInfo is the CMDB view of a managed resource.
type ResourceInfo struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Cluster    string         `json:"cluster"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ITSMClient interface {
	CreateApproval(ctx context.Context, req ApprovalRequest) (string, error)
	CancelApproval(ctx context.Context, sheetID string) error
}

type PipelineClient interface {
	TriggerRun(ctx context.Context, req PipelineRequest) (string, error)
	CancelRun(ctx context.Context, runID string) error
}

type ResourcePoolClient interface {
	Apply(ctx context.Context, req ResourceApplyRequest) (string, error)
}

type CMDBClient interface {
	GetResource(ctx context.Context, resourceID string) (*ResourceInfo, error)
}

// httpCaller holds what every concrete client needs to talk JSON over HTTP.
type httpCaller struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

func newHTTPCaller(baseURL, token string, logger *slog.Logger, module string) *httpCaller {
	return &httpCaller{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:  logger.With("module", module),
		retries: 3,
		backoff: 2 * time.Second,
	}
}

// doJSON posts (or gets) a JSON payload, retrying on transport errors and
// 5xx responses, and decodes the response body into out when out is non-nil.
func (c *httpCaller) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body []byte

	if payload != nil {
		var err error

		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, fmt.Sprintf("retrying request %d/%d", attempt, c.retries), "path", path)
			time.Sleep(c.backoff)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create http request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)

		err = resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}

		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", readErr)

			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (status %d): %w", resp.StatusCode, ErrRemoteUnavailable)

			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s %s returned status %d: %w", method, path, resp.StatusCode, ErrRemoteRejected)
		}

		if out == nil {
			return nil
		}

		err = json.Unmarshal(respBody, out)
		if err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}

		return nil
	}

	return fmt.Errorf("all retry attempts failed: %w", lastErr)
}
