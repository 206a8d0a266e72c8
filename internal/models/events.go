package models

import "time"

// Event types
const (
	EventTypeOrderReceived     = "ORDER_RECEIVED"
	EventTypeSplitCreated      = "SPLIT_CREATED"
	EventTypeSplitConfirmed    = "SPLIT_CONFIRMED"
	EventTypeSplitStatusChange = "SPLIT_STATUS_CHANGED"
	EventTypeSplitCancelled    = "SPLIT_CANCELLED"
	EventTypeStockReleased     = "STOCK_RELEASED"
	EventTypeRefundIssued      = "REFUND_ISSUED"
	EventTypePaymentSuccess    = "PAYMENT_SUCCESS"
	EventTypePaymentRefunded   = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderReceivedEvent published when a platform order enters the split pipeline
type OrderReceivedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// SplitCreatedEvent published for each split order produced by the engine
type SplitCreatedEvent struct {
	BaseEvent
	SplitID    string      `json:"split_id"`
	OrderRefID string      `json:"order_ref_id"`
	StoreCode  string      `json:"store_code"`
	Items      []SplitItem `json:"items"`
}

// SplitConfirmedEvent published when a split is confirmed and pushed to the ERP
type SplitConfirmedEvent struct {
	BaseEvent
	SplitID   string `json:"split_id"`
	StoreCode string `json:"store_code"`
}

// SplitStatusChangedEvent published on every lifecycle transition
type SplitStatusChangedEvent struct {
	BaseEvent
	SplitID    string `json:"split_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	TaskID     string `json:"task_id,omitempty"`
}

// SplitCancelledEvent published when a split is cancelled
type SplitCancelledEvent struct {
	BaseEvent
	SplitID    string `json:"split_id"`
	OrderRefID string `json:"order_ref_id"`
	Reason     string `json:"reason"`
}

// StockReleasedEvent published when cancelled quantities return to inventory
type StockReleasedEvent struct {
	BaseEvent
	SplitID string `json:"split_id"`
	StoreID string `json:"store_id"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

// RefundIssuedEvent published when a refund completes against the original
// payment transaction
type RefundIssuedEvent struct {
	BaseEvent
	SplitID       string `json:"split_id"`
	OrderRefID    string `json:"order_ref_id"`
	TransactionID string `json:"transaction_id"`
	RefundID      string `json:"refund_id"`
	Amount        int64  `json:"amount"`
}

// PaymentSuccessEvent consumed from the payment stream; clears payment holds
type PaymentSuccessEvent struct {
	BaseEvent
	OrderRefID    string `json:"order_ref_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

// PaymentRefundedEvent consumed from the payment stream
type PaymentRefundedEvent struct {
	BaseEvent
	OrderRefID string `json:"order_ref_id"`
	RefundID   string `json:"refund_id"`
	Amount     int64  `json:"amount"`
}
