package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Store represents a physical retail location. Stores are administered by the
// commerce platform and are read-only here.
type Store struct {
	ID              string    `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	Status          string    `db:"status" json:"status"`
	Latitude        float64   `db:"latitude" json:"latitude"`
	Longitude       float64   `db:"longitude" json:"longitude"`
	DeliveryRadius  float64   `db:"delivery_radius_km" json:"delivery_radius_km"`
	BackupStoreCode string    `db:"backup_store_code" json:"backup_store_code,omitempty"`
	ClusterID       string    `db:"cluster_id" json:"cluster_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Store statuses
const (
	StoreStatusActive   = "active"
	StoreStatusInactive = "inactive"
)

// InventoryRecord is the per-(store, SKU) stock row. HybridStock is derived;
// every mutation bumps Version so writers can compare-and-set.
type InventoryRecord struct {
	StoreID        string    `db:"store_id" json:"store_id"`
	SKU            string    `db:"sku" json:"sku"`
	ERPStock       int       `db:"erp_stock" json:"erp_stock"`
	BufferStock    int       `db:"buffer_stock" json:"buffer_stock"`
	BackupStock    int       `db:"backup_stock" json:"backup_stock"`
	ThresholdStock int       `db:"threshold_stock" json:"threshold_stock"`
	OnlineStock    int       `db:"online_stock" json:"online_stock"`
	HybridStock    int       `db:"hybrid_stock" json:"hybrid_stock"`
	Version        int64     `db:"version" json:"version"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// LineItem is one line of a platform order.
type LineItem struct {
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Order is the platform-owned order as read through the commerce adapter.
type Order struct {
	ID              string     `json:"id"`
	OrderNumber     string     `json:"order_number"`
	Currency        string     `json:"currency"`
	CustomerID      string     `json:"customer_id"`
	FinancialStatus string     `json:"financial_status"`
	ShippingMethod  string     `json:"shipping_method"`
	DeliveryLat     float64    `json:"delivery_lat"`
	DeliveryLng     float64    `json:"delivery_lng"`
	Items           []LineItem `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

// Order financial statuses (platform-owned, read here to gate transitions)
const (
	FinancialStatusPending  = "pending"
	FinancialStatusPaid     = "paid"
	FinancialStatusRefunded = "refunded"
)

// Shipping methods
const (
	ShippingMethodPickup   = "pickup"
	ShippingMethodDelivery = "delivery"
)

// Timestamps maps transition names to epoch seconds, stored as JSONB.
type Timestamps map[string]int64

// Value implements driver.Valuer for JSONB storage.
func (t Timestamps) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for JSONB storage.
func (t *Timestamps) Scan(src interface{}) error {
	if src == nil {
		*t = Timestamps{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("timestamps: cannot scan %T", src)
	}
	return json.Unmarshal(b, t)
}

// SplitOrder is the per-store portion of an order, tracked independently
// through fulfillment. SplitID is "{orderNumber}-{storeCode}".
type SplitOrder struct {
	SplitID         string     `db:"split_id" json:"split_id"`
	OrderRefID      string     `db:"order_ref_id" json:"order_ref_id"`
	OrderNumber     string     `db:"order_number" json:"order_number"`
	StoreID         string     `db:"store_id" json:"store_id"`
	StoreCode       string     `db:"store_code" json:"store_code"`
	StoreName       string     `db:"store_name" json:"store_name"`
	OrderStatus     string     `db:"order_status" json:"order_status"`
	OnHoldStatus    string     `db:"on_hold_status" json:"on_hold_status,omitempty"`
	FinancialStatus string     `db:"financial_status" json:"financial_status,omitempty"`
	CancelReason    string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CourierTaskID   string     `db:"courier_task_id" json:"courier_task_id,omitempty"`
	RiderName       string     `db:"rider_name" json:"rider_name,omitempty"`
	RiderPhone      string     `db:"rider_phone" json:"rider_phone,omitempty"`
	PayoutPrice     int64      `db:"payout_price" json:"payout_price"`
	PayoutTax       int64      `db:"payout_tax" json:"payout_tax"`
	PayoutTotal     int64      `db:"payout_total" json:"payout_total"`
	Timestamps      Timestamps `db:"timestamps" json:"timestamps"`
	LastError       string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	Items []SplitItem `json:"items,omitempty"`
}

// SplitItem is a line item assigned to a split order.
type SplitItem struct {
	ID        int64  `db:"id" json:"id"`
	SplitID   string `db:"split_id" json:"split_id"`
	SKU       string `db:"sku" json:"sku"`
	Title     string `db:"title" json:"title"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// Split order statuses, in lifecycle order.
const (
	SplitStatusNew            = "new"
	SplitStatusOnHold         = "on_hold"
	SplitStatusConfirm        = "confirm"
	SplitStatusReadyForPickup = "ready_for_pickup"
	SplitStatusOutForDelivery = "out_for_delivery"
	SplitStatusDelivered      = "delivered"
	SplitStatusCancelled      = "cancelled"
)

// Split financial overlay statuses
const (
	SplitFinancialPaid     = "paid"
	SplitFinancialRefunded = "refunded"
)

// On-hold reasons
const (
	HoldAwaitingPayment = "awaiting_payment"
	HoldManual          = "manual"
)

// TerminalStatus reports whether no further lifecycle transition is allowed.
func TerminalStatus(status string) bool {
	return status == SplitStatusDelivered || status == SplitStatusCancelled
}

// CourierTask is the last-mile delivery unit, one-to-one with a dispatched
// split order. Populated by courier callbacks.
type CourierTask struct {
	TaskID       string    `db:"task_id" json:"task_id"`
	SplitID      string    `db:"split_id" json:"split_id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	Status       string    `db:"status" json:"status"`
	StatusCode   int       `db:"status_code" json:"status_code"`
	Message      string    `db:"message" json:"message,omitempty"`
	TrackingURL  string    `db:"tracking_url" json:"tracking_url,omitempty"`
	PartnerName  string    `db:"partner_name" json:"partner_name,omitempty"`
	PartnerPhone string    `db:"partner_phone" json:"partner_phone,omitempty"`
	Vehicle      string    `db:"vehicle" json:"vehicle,omitempty"`
	Latitude     float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude    float64   `db:"longitude" json:"longitude,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Courier task statuses
const (
	CourierStatusOpen      = "open"
	CourierStatusAccepted  = "accepted"
	CourierStatusLive      = "live"
	CourierStatusEnded     = "ended"
	CourierStatusCancelled = "cancelled"
)

// Courier callback status codes, ascending in delivery order. A callback with
// a code less than or equal to the last applied code is a no-op.
const (
	CourierCodeOpen          = 1
	CourierCodeAccepted      = 2
	CourierCodeReachedPickup = 3
	CourierCodeDispatched    = 4
	CourierCodeArrived       = 5
	CourierCodeDelivered     = 6
	CourierCodeCancelled     = 9
)

// RiderInfo is the courier partner detail carried on status callbacks.
type RiderInfo struct {
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Vehicle   string  `json:"vehicle"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PaymentTransaction is the original payment against an order, as returned by
// the payment adapter.
type PaymentTransaction struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Gateway  string `json:"gateway"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Payment transaction statuses
const (
	TransactionStatusSuccess = "success"
	TransactionStatusFailure = "failure"
)

// ProcessedEvent for event idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
