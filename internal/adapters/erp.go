package adapters

import (
	"context"
	"net/http"
	"time"

	"fulfillment-service/internal/models"
)

// HTTPERPClient talks to the ERP over its order/stock HTTP API.
type HTTPERPClient struct {
	http *httpClient
}

// NewERPClient creates an ERP adapter.
func NewERPClient(baseURL, apiKey string, timeout time.Duration) *HTTPERPClient {
	return &HTTPERPClient{http: newHTTPClient("erp", baseURL, apiKey, timeout)}
}

type erpPushRequest struct {
	SplitID string             `json:"split_id"`
	StoreID string             `json:"store_id"`
	Items   []models.SplitItem `json:"items"`
}

// PushOrder sends a confirmed split's line items to the ERP. Idempotent by
// splitID on the ERP side.
func (c *HTTPERPClient) PushOrder(ctx context.Context, storeID, splitID string, items []models.SplitItem) error {
	req := erpPushRequest{SplitID: splitID, StoreID: storeID, Items: items}
	return c.http.do(ctx, "push_order", http.MethodPost, "/orders", req, nil)
}

// PullStock fetches on-hand counts for every SKU at a store.
func (c *HTTPERPClient) PullStock(ctx context.Context, storeID string) ([]StockLevel, error) {
	var out struct {
		Levels []StockLevel `json:"levels"`
	}
	if err := c.http.do(ctx, "pull_stock", http.MethodGet, "/stock/"+storeID, nil, &out); err != nil {
		return nil, err
	}
	return out.Levels, nil
}
