package adapters

import (
	"context"
	"net/http"
	"time"
)

// HTTPCourierClient talks to the logistics provider's task API.
type HTTPCourierClient struct {
	http *httpClient
}

// NewCourierClient creates a courier adapter.
func NewCourierClient(baseURL, apiKey string, timeout time.Duration) *HTTPCourierClient {
	return &HTTPCourierClient{http: newHTTPClient("courier", baseURL, apiKey, timeout)}
}

// CreateTask requests a last-mile delivery task. Idempotent by RequestID.
func (c *HTTPCourierClient) CreateTask(ctx context.Context, req *CourierTaskRequest) (*CourierTaskResponse, error) {
	var out CourierTaskResponse
	if err := c.http.do(ctx, "create_task", http.MethodPost, "/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTask asks the provider to cancel a task. Cancelling an already
// cancelled task is acknowledged, so retries are safe.
func (c *HTTPCourierClient) CancelTask(ctx context.Context, taskID string) error {
	return c.http.do(ctx, "cancel_task", http.MethodPost, "/tasks/"+taskID+"/cancel", nil, nil)
}
