package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/inventory"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SplitStore is the persistence the split engine needs.
type SplitStore interface {
	CreateSplitOrders(ctx context.Context, splits []models.SplitOrder) error
	GetSplitsByOrderRef(ctx context.Context, orderRefID string) ([]models.SplitOrder, error)
}

// Allocator decides which stores serve a SKU and how much each takes.
type Allocator interface {
	Allocate(ctx context.Context, sku string, qty int, destLat, destLng float64) ([]inventory.Allocation, error)
}

// SplitPublisher emits split lifecycle events.
type SplitPublisher interface {
	PublishOrderReceived(ctx context.Context, event *models.OrderReceivedEvent) error
	PublishSplitCreated(ctx context.Context, event *models.SplitCreatedEvent) error
}

// SplitEngine partitions an order's line items into one split order per
// serving store, reserving online stock as it goes.
type SplitEngine struct {
	store     SplitStore
	stock     *StockKeeper
	allocator Allocator
	publisher SplitPublisher
	logger    *zap.Logger
}

// NewSplitEngine creates a split engine.
func NewSplitEngine(store SplitStore, stock *StockKeeper, allocator Allocator, publisher SplitPublisher) *SplitEngine {
	return &SplitEngine{
		store:     store,
		stock:     stock,
		allocator: allocator,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// skuDemand is one SKU's aggregated demand across an order's line items.
type skuDemand struct {
	sku       string
	title     string
	qty       int
	unitPrice int64
}

// reservation tracks an applied stock commitment for compensation.
type reservation struct {
	storeID string
	sku     string
	qty     int
}

// SplitOrder partitions the order across stores. The result covers every line
// item exactly once; all splits persist atomically or none do. Already-split
// orders return their existing splits, making re-delivery of the order
// webhook safe.
func (e *SplitEngine) SplitOrder(ctx context.Context, order *models.Order) ([]models.SplitOrder, error) {
	ctx, span := util.StartSpan(ctx, "SplitEngine.SplitOrder")
	defer span.End()

	existing, err := e.store.GetSplitsByOrderRef(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing splits: %w", err)
	}
	if len(existing) > 0 {
		e.logger.Info("Order already split",
			zap.String("order_id", order.ID),
			zap.Int("splits", len(existing)))
		return existing, nil
	}

	util.OrdersSplitTotal.Inc()

	if e.publisher != nil {
		event := &models.OrderReceivedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderReceived),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		}
		if err := e.publisher.PublishOrderReceived(ctx, event); err != nil {
			e.logger.Error("Failed to publish OrderReceived event", zap.Error(err))
		}
	}

	demands := groupBySKU(order.Items)

	var reserved []reservation
	splitsByStore := make(map[string]*models.SplitOrder)
	storeOrder := make([]string, 0, 2)

	for _, d := range demands {
		allocations, err := e.allocator.Allocate(ctx, d.sku, d.qty, order.DeliveryLat, order.DeliveryLng)
		if err != nil {
			e.compensate(ctx, reserved)
			util.SplitsFailedTotal.WithLabelValues("out_of_stock").Inc()
			return nil, fmt.Errorf("allocation for order %s: %w", order.ID, err)
		}

		for _, alloc := range allocations {
			ok, err := e.stock.Reserve(ctx, alloc.StoreID, d.sku, alloc.Qty)
			if err != nil {
				e.compensate(ctx, reserved)
				util.SplitsFailedTotal.WithLabelValues("reservation_error").Inc()
				return nil, fmt.Errorf("failed to reserve %s at %s: %w", d.sku, alloc.StoreCode, err)
			}
			if !ok {
				// Lost the race for this SKU since the allocation snapshot.
				e.compensate(ctx, reserved)
				util.SplitsFailedTotal.WithLabelValues("out_of_stock").Inc()
				return nil, fmt.Errorf("sku %s contended at %s: %w", d.sku, alloc.StoreCode, ErrOutOfStock)
			}
			reserved = append(reserved, reservation{storeID: alloc.StoreID, sku: d.sku, qty: alloc.Qty})

			sp, ok := splitsByStore[alloc.StoreCode]
			if !ok {
				sp = e.newSplit(order, alloc)
				splitsByStore[alloc.StoreCode] = sp
				storeOrder = append(storeOrder, alloc.StoreCode)
			}
			sp.Items = append(sp.Items, models.SplitItem{
				SplitID:   sp.SplitID,
				SKU:       d.sku,
				Title:     d.title,
				Quantity:  alloc.Qty,
				UnitPrice: d.unitPrice,
			})
		}
	}

	splits := make([]models.SplitOrder, 0, len(storeOrder))
	for _, code := range storeOrder {
		sp := splitsByStore[code]
		for _, item := range sp.Items {
			sp.PayoutPrice += item.UnitPrice * int64(item.Quantity)
		}
		sp.PayoutTotal = sp.PayoutPrice + sp.PayoutTax
		splits = append(splits, *sp)
	}

	if err := e.store.CreateSplitOrders(ctx, splits); err != nil {
		// All-or-nothing: nothing committed, so every reservation comes back.
		e.compensate(ctx, reserved)
		util.SplitsFailedTotal.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("split persistence for order %s: %w", order.ID, err)
	}

	util.SplitsCreatedTotal.Add(float64(len(splits)))
	e.logger.Info("Order split",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("splits", len(splits)))

	if e.publisher != nil {
		for i := range splits {
			event := &models.SplitCreatedEvent{
				BaseEvent:  newBaseEvent(models.EventTypeSplitCreated),
				SplitID:    splits[i].SplitID,
				OrderRefID: splits[i].OrderRefID,
				StoreCode:  splits[i].StoreCode,
				Items:      splits[i].Items,
			}
			if err := e.publisher.PublishSplitCreated(ctx, event); err != nil {
				e.logger.Error("Failed to publish SplitCreated event",
					zap.String("split_id", splits[i].SplitID),
					zap.Error(err))
			}
		}
	}

	return splits, nil
}

// newSplit initializes the split shell for one store. Unpaid delivery orders
// start on a payment hold.
func (e *SplitEngine) newSplit(order *models.Order, alloc inventory.Allocation) *models.SplitOrder {
	sp := &models.SplitOrder{
		SplitID:     fmt.Sprintf("%s-%s", order.OrderNumber, alloc.StoreCode),
		OrderRefID:  order.ID,
		OrderNumber: order.OrderNumber,
		StoreID:     alloc.StoreID,
		StoreCode:   alloc.StoreCode,
		StoreName:   alloc.StoreName,
		OrderStatus: models.SplitStatusNew,
		Timestamps:  models.Timestamps{"created": time.Now().Unix()},
	}
	if order.FinancialStatus == models.FinancialStatusPaid {
		sp.FinancialStatus = models.SplitFinancialPaid
	} else {
		sp.OnHoldStatus = models.HoldAwaitingPayment
	}
	return sp
}

// compensate rolls back applied reservations after a failed split attempt.
func (e *SplitEngine) compensate(ctx context.Context, reserved []reservation) {
	for _, r := range reserved {
		if err := e.stock.Release(ctx, r.storeID, r.sku, r.qty); err != nil {
			e.logger.Error("Failed to compensate reservation",
				zap.String("store_id", r.storeID),
				zap.String("sku", r.sku),
				zap.Int("qty", r.qty),
				zap.Error(err))
		}
	}
}

// groupBySKU aggregates line items per SKU, preserving first-appearance order
// so allocation is deterministic for a given order.
func groupBySKU(items []models.LineItem) []skuDemand {
	index := make(map[string]int, len(items))
	demands := make([]skuDemand, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.SKU]; ok {
			demands[i].qty += item.Quantity
			continue
		}
		index[item.SKU] = len(demands)
		demands = append(demands, skuDemand{
			sku:       item.SKU,
			title:     item.Title,
			qty:       item.Quantity,
			unitPrice: item.UnitPrice,
		})
	}
	return demands
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
