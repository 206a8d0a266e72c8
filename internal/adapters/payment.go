package adapters

import (
	"context"
	"net/http"
	"time"

	"fulfillment-service/internal/models"
)

// HTTPPaymentClient talks to the payment-link provider.
type HTTPPaymentClient struct {
	http *httpClient
}

// NewPaymentClient creates a payment adapter.
func NewPaymentClient(baseURL, apiKey string, timeout time.Duration) *HTTPPaymentClient {
	return &HTTPPaymentClient{http: newHTTPClient("payment", baseURL, apiKey, timeout)}
}

// FindOriginalTransaction returns the successful payment transaction for an
// order, or nil when none exists.
func (c *HTTPPaymentClient) FindOriginalTransaction(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	var out struct {
		Transactions []models.PaymentTransaction `json:"transactions"`
	}
	if err := c.http.do(ctx, "find_transaction", http.MethodGet, "/orders/"+orderID+"/transactions", nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Transactions {
		if out.Transactions[i].Status == models.TransactionStatusSuccess {
			return &out.Transactions[i], nil
		}
	}
	return nil, nil
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

// Refund issues a refund against the original transaction.
func (c *HTTPPaymentClient) Refund(ctx context.Context, orderID string, tx *models.PaymentTransaction, amount int64) (string, error) {
	var out struct {
		RefundID string `json:"refund_id"`
	}
	req := refundRequest{TransactionID: tx.ID, Amount: amount}
	if err := c.http.do(ctx, "refund", http.MethodPost, "/orders/"+orderID+"/refunds", req, &out); err != nil {
		return "", err
	}
	return out.RefundID, nil
}
