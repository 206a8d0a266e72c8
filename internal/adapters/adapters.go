// Package adapters holds the narrow contracts to the external systems this
// service collaborates with: the ERP, the courier provider, the payment
// provider and the host commerce platform. Every call is context-bound and
// idempotent by splitID or taskID, so a timed-out call is safely retried.
package adapters

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
)

// ExternalCallError wraps a failed or timed-out call to an external system.
type ExternalCallError struct {
	System string
	Op     string
	Err    error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.System, e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// StockLevel is one SKU's on-hand count as reported by the ERP.
type StockLevel struct {
	SKU   string `json:"sku"`
	Stock int    `json:"stock"`
}

// ERPClient pushes confirmed splits to the ERP and pulls raw stock counts.
type ERPClient interface {
	PushOrder(ctx context.Context, storeID, splitID string, items []models.SplitItem) error
	PullStock(ctx context.Context, storeID string) ([]StockLevel, error)
}

// CourierTaskRequest describes a last-mile task to create.
type CourierTaskRequest struct {
	RequestID  string            `json:"request_id"`
	SplitID    string            `json:"split_id"`
	PickupName string            `json:"pickup_name"`
	PickupLat  float64           `json:"pickup_lat"`
	PickupLng  float64           `json:"pickup_lng"`
	DropLat    float64           `json:"drop_lat"`
	DropLng    float64           `json:"drop_lng"`
	Items      []models.SplitItem `json:"items"`
}

// CourierTaskResponse is the provider's acknowledgement of a created task.
type CourierTaskResponse struct {
	TaskID      string `json:"task_id"`
	TrackingURL string `json:"tracking_url"`
}

// CourierClient creates and cancels last-mile delivery tasks. Status updates
// arrive asynchronously through the callback webhook, not through this client.
type CourierClient interface {
	CreateTask(ctx context.Context, req *CourierTaskRequest) (*CourierTaskResponse, error)
	CancelTask(ctx context.Context, taskID string) error
}

// PaymentClient resolves original transactions and issues refunds.
type PaymentClient interface {
	FindOriginalTransaction(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	Refund(ctx context.Context, orderID string, tx *models.PaymentTransaction, amount int64) (string, error)
}

// CommerceClient reads platform orders and applies terminal-state mutations.
type CommerceClient interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	MarkFulfilled(ctx context.Context, orderID, splitID string) error
	CancelLineItems(ctx context.Context, orderID string, items []models.SplitItem) error
	SetFinancialStatus(ctx context.Context, orderID, status string) error
}
