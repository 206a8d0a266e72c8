package adapters

import (
	"context"
	"net/http"
	"time"

	"fulfillment-service/internal/models"
)

// HTTPCommerceClient talks to the host commerce platform.
type HTTPCommerceClient struct {
	http *httpClient
}

// NewCommerceClient creates a commerce platform adapter.
func NewCommerceClient(baseURL, apiKey string, timeout time.Duration) *HTTPCommerceClient {
	return &HTTPCommerceClient{http: newHTTPClient("commerce", baseURL, apiKey, timeout)}
}

// GetOrder reads a platform order.
func (c *HTTPCommerceClient) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var out models.Order
	if err := c.http.do(ctx, "get_order", http.MethodGet, "/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type fulfillRequest struct {
	SplitID string `json:"split_id"`
}

// MarkFulfilled records a delivered split against the platform order.
func (c *HTTPCommerceClient) MarkFulfilled(ctx context.Context, orderID, splitID string) error {
	return c.http.do(ctx, "mark_fulfilled", http.MethodPost, "/orders/"+orderID+"/fulfillments", fulfillRequest{SplitID: splitID}, nil)
}

type cancelItemsRequest struct {
	Items []models.SplitItem `json:"items"`
}

// CancelLineItems removes a cancelled split's line items from the platform order.
func (c *HTTPCommerceClient) CancelLineItems(ctx context.Context, orderID string, items []models.SplitItem) error {
	return c.http.do(ctx, "cancel_line_items", http.MethodPost, "/orders/"+orderID+"/cancellations", cancelItemsRequest{Items: items}, nil)
}

type financialStatusRequest struct {
	FinancialStatus string `json:"financial_status"`
}

// SetFinancialStatus updates the platform order's financial status, used after
// a completed refund.
func (c *HTTPCommerceClient) SetFinancialStatus(ctx context.Context, orderID, status string) error {
	return c.http.do(ctx, "set_financial_status", http.MethodPut, "/orders/"+orderID+"/financial_status", financialStatusRequest{FinancialStatus: status}, nil)
}
