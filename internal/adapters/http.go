package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fulfillment-service/internal/util"
)

// httpClient is the shared plumbing for the HTTP adapter implementations.
// ERP and courier responses can take minutes, so the timeout is configured
// per adapter rather than hardcoded.
type httpClient struct {
	system  string
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(system, baseURL, apiKey string, timeout time.Duration) *httpClient {
	return &httpClient{
		system:  system,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// do issues one JSON request. Timeouts and non-2xx responses come back as
// *ExternalCallError; the caller decides between retry and surfaced failure.
func (h *httpClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &ExternalCallError{System: h.system, Op: op, Err: err}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return &ExternalCallError{System: h.system, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		util.ExternalCallFailures.WithLabelValues(h.system, op).Inc()
		return &ExternalCallError{System: h.system, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.ExternalCallFailures.WithLabelValues(h.system, op).Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ExternalCallError{
			System: h.system,
			Op:     op,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ExternalCallError{System: h.system, Op: op, Err: err}
		}
	}
	return nil
}
