package service

import (
	"context"
	"fmt"
	"strconv"

	"fulfillment-service/internal/adapters"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentStore is the persistence the state machine needs.
type FulfillmentStore interface {
	GetSplitOrder(ctx context.Context, splitID string) (*models.SplitOrder, error)
	GetSplitsByOrderRef(ctx context.Context, orderRefID string) ([]models.SplitOrder, error)
	TransitionSplitStatus(ctx context.Context, splitID, to string, from []string) (bool, error)
	CancelSplitOrder(ctx context.Context, splitID, reason string) (bool, error)
	SetSplitError(ctx context.Context, splitID, msg string) error
	SetSplitOnHold(ctx context.Context, splitID, reason string) error
	ClearHoldsForOrder(ctx context.Context, orderRefID string) error
	SetSplitCourierTask(ctx context.Context, splitID, taskID string) error
	SetSplitRider(ctx context.Context, splitID, name, phone string) error
	SetSplitFinancialStatus(ctx context.Context, splitID, status string) error
	SetSplitPayout(ctx context.Context, splitID string, price, tax, total int64) error
	GetStoreByID(ctx context.Context, id string) (*models.Store, error)
	Oversold(ctx context.Context, storeID, sku string) (bool, error)

	CreateCourierTask(ctx context.Context, task *models.CourierTask) error
	GetCourierTask(ctx context.Context, taskID string) (*models.CourierTask, error)
	GetCourierTaskBySplit(ctx context.Context, splitID string) (*models.CourierTask, error)
	AdvanceCourierTask(ctx context.Context, taskID, status string, code int, message string, rider *models.RiderInfo) (bool, error)
	UpdateCourierLocation(ctx context.Context, taskID string, lat, lng float64) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// FulfillmentPublisher emits state machine events.
type FulfillmentPublisher interface {
	PublishSplitConfirmed(ctx context.Context, event *models.SplitConfirmedEvent) error
	PublishSplitStatusChanged(ctx context.Context, event *models.SplitStatusChangedEvent) error
	PublishSplitCancelled(ctx context.Context, event *models.SplitCancelledEvent) error
	PublishStockReleased(ctx context.Context, event *models.StockReleasedEvent) error
	PublishRefundIssued(ctx context.Context, event *models.RefundIssuedEvent) error
}

// Fulfillment owns the split order lifecycle. Transitions are guarded in the
// database so at most one concurrent trigger applies; a later-arriving but
// logically earlier courier status is a no-op.
type Fulfillment struct {
	store     FulfillmentStore
	stock     *StockKeeper
	erp       adapters.ERPClient
	courier   adapters.CourierClient
	payment   adapters.PaymentClient
	commerce  adapters.CommerceClient
	publisher FulfillmentPublisher
	logger    *zap.Logger
}

// NewFulfillment creates the fulfillment state machine.
func NewFulfillment(
	store FulfillmentStore,
	stock *StockKeeper,
	erp adapters.ERPClient,
	courier adapters.CourierClient,
	payment adapters.PaymentClient,
	commerce adapters.CommerceClient,
	publisher FulfillmentPublisher,
) *Fulfillment {
	return &Fulfillment{
		store:     store,
		stock:     stock,
		erp:       erp,
		courier:   courier,
		payment:   payment,
		commerce:  commerce,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Confirm moves a split from new/on_hold to confirm and pushes its line items
// to the ERP. A failed ERP push leaves the split in confirm with the error
// recorded; calling Confirm again retries the push. Payment holds must be
// cleared (the order paid) first, and the confirmation re-validates inventory:
// if commitments now exceed on-hand stock the transition fails with
// ErrOutOfStock.
func (f *Fulfillment) Confirm(ctx context.Context, splitID string) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.Confirm")
	defer span.End()

	sp, err := f.store.GetSplitOrder(ctx, splitID)
	if err != nil {
		return err
	}

	if models.TerminalStatus(sp.OrderStatus) {
		util.TransitionsRejected.WithLabelValues("terminal").Inc()
		return fmt.Errorf("split %s is %s: %w", splitID, sp.OrderStatus, ErrInvalidTransition)
	}

	if sp.OnHoldStatus == models.HoldAwaitingPayment {
		order, err := f.commerce.GetOrder(ctx, sp.OrderRefID)
		if err != nil {
			return fmt.Errorf("failed to read order %s: %w", sp.OrderRefID, err)
		}
		if order.FinancialStatus != models.FinancialStatusPaid {
			util.TransitionsRejected.WithLabelValues("awaiting_payment").Inc()
			return fmt.Errorf("split %s awaiting payment: %w", splitID, ErrInvalidTransition)
		}
		if err := f.store.ClearHoldsForOrder(ctx, sp.OrderRefID); err != nil {
			return fmt.Errorf("failed to clear payment hold: %w", err)
		}
	}

	for _, item := range sp.Items {
		oversold, err := f.store.Oversold(ctx, sp.StoreID, item.SKU)
		if err != nil {
			return fmt.Errorf("failed to re-validate stock: %w", err)
		}
		if oversold {
			util.TransitionsRejected.WithLabelValues("out_of_stock").Inc()
			return fmt.Errorf("sku %s oversold at %s: %w", item.SKU, sp.StoreCode, ErrOutOfStock)
		}
	}

	applied, err := f.store.TransitionSplitStatus(ctx, splitID, models.SplitStatusConfirm,
		[]string{models.SplitStatusNew, models.SplitStatusOnHold})
	if err != nil {
		return err
	}
	if !applied && sp.OrderStatus != models.SplitStatusConfirm {
		util.TransitionsRejected.WithLabelValues("invalid_source").Inc()
		return fmt.Errorf("split %s cannot confirm from %s: %w", splitID, sp.OrderStatus, ErrInvalidTransition)
	}
	if applied {
		util.TransitionsTotal.WithLabelValues(models.SplitStatusConfirm).Inc()

		// Payout is locked in at confirmation; cancelled items never reach it.
		var price int64
		for _, item := range sp.Items {
			price += item.UnitPrice * int64(item.Quantity)
		}
		if err := f.store.SetSplitPayout(ctx, splitID, price, sp.PayoutTax, price+sp.PayoutTax); err != nil {
			f.logger.Error("Failed to record split payout", zap.Error(err))
		}
	} else if sp.LastError != "" {
		// Retry of a failed push; drop the stale error before trying again.
		if err := f.store.SetSplitError(ctx, splitID, ""); err != nil {
			f.logger.Error("Failed to clear split error", zap.Error(err))
		}
	}

	// Past this point the split stays in confirm even when the push fails;
	// the push is idempotent by splitID and retried by calling Confirm again.
	if err := f.erp.PushOrder(ctx, sp.StoreID, splitID, sp.Items); err != nil {
		f.logger.Error("ERP push failed",
			zap.String("split_id", splitID),
			zap.Error(err))
		if serr := f.store.SetSplitError(ctx, splitID, fmt.Sprintf("erp push: %v", err)); serr != nil {
			f.logger.Error("Failed to record split error", zap.Error(serr))
		}
		return err
	}

	f.logger.Info("Split confirmed",
		zap.String("split_id", splitID),
		zap.String("store_code", sp.StoreCode))

	if f.publisher != nil {
		event := &models.SplitConfirmedEvent{
			BaseEvent: newBaseEvent(models.EventTypeSplitConfirmed),
			SplitID:   splitID,
			StoreCode: sp.StoreCode,
		}
		if err := f.publisher.PublishSplitConfirmed(ctx, event); err != nil {
			f.logger.Error("Failed to publish SplitConfirmed event", zap.Error(err))
		}
	}
	return nil
}

// Dispatch creates the courier task for a confirmed delivery split. Idempotent:
// a split that already carries a task linkage returns it unchanged. Pickup
// splits never dispatch.
func (f *Fulfillment) Dispatch(ctx context.Context, splitID string) (*models.CourierTask, error) {
	ctx, span := util.StartSpan(ctx, "Fulfillment.Dispatch")
	defer span.End()

	sp, err := f.store.GetSplitOrder(ctx, splitID)
	if err != nil {
		return nil, err
	}

	if sp.CourierTaskID != "" {
		return f.store.GetCourierTask(ctx, sp.CourierTaskID)
	}

	if sp.OrderStatus != models.SplitStatusConfirm {
		util.TransitionsRejected.WithLabelValues("invalid_source").Inc()
		return nil, fmt.Errorf("split %s cannot dispatch from %s: %w", splitID, sp.OrderStatus, ErrInvalidTransition)
	}

	order, err := f.commerce.GetOrder(ctx, sp.OrderRefID)
	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", sp.OrderRefID, err)
	}
	if order.ShippingMethod == models.ShippingMethodPickup {
		return nil, fmt.Errorf("split %s is a pickup order: %w", splitID, ErrInvalidTransition)
	}

	st, err := f.store.GetStoreByID(ctx, sp.StoreID)
	if err != nil {
		return nil, err
	}

	req := &adapters.CourierTaskRequest{
		RequestID:  uuid.New().String(),
		SplitID:    splitID,
		PickupName: st.Name,
		PickupLat:  st.Latitude,
		PickupLng:  st.Longitude,
		DropLat:    order.DeliveryLat,
		DropLng:    order.DeliveryLng,
		Items:      sp.Items,
	}

	resp, err := f.courier.CreateTask(ctx, req)
	if err != nil {
		if serr := f.store.SetSplitError(ctx, splitID, fmt.Sprintf("courier dispatch: %v", err)); serr != nil {
			f.logger.Error("Failed to record split error", zap.Error(serr))
		}
		return nil, err
	}

	task := &models.CourierTask{
		TaskID:      resp.TaskID,
		SplitID:     splitID,
		RequestID:   req.RequestID,
		Status:      models.CourierStatusOpen,
		StatusCode:  models.CourierCodeOpen,
		TrackingURL: resp.TrackingURL,
	}
	if err := f.store.CreateCourierTask(ctx, task); err != nil {
		return nil, err
	}
	if err := f.store.SetSplitCourierTask(ctx, splitID, task.TaskID); err != nil {
		return nil, err
	}

	f.logger.Info("Courier task dispatched",
		zap.String("split_id", splitID),
		zap.String("task_id", task.TaskID))
	return task, nil
}

// courierTransition maps a callback code onto the task status and the split
// transition it drives.
type courierTransition struct {
	taskStatus string
	toStatus   string   // empty for informational callbacks
	from       []string
}

var courierTransitions = map[int]courierTransition{
	models.CourierCodeOpen:     {taskStatus: models.CourierStatusOpen},
	models.CourierCodeAccepted: {taskStatus: models.CourierStatusAccepted},
	models.CourierCodeReachedPickup: {
		taskStatus: models.CourierStatusAccepted,
		toStatus:   models.SplitStatusReadyForPickup,
		from:       []string{models.SplitStatusConfirm},
	},
	models.CourierCodeDispatched: {
		taskStatus: models.CourierStatusLive,
		toStatus:   models.SplitStatusOutForDelivery,
		from:       []string{models.SplitStatusConfirm, models.SplitStatusReadyForPickup},
	},
	models.CourierCodeArrived: {taskStatus: models.CourierStatusLive},
	models.CourierCodeDelivered: {
		taskStatus: models.CourierStatusEnded,
		toStatus:   models.SplitStatusDelivered,
		from: []string{models.SplitStatusConfirm, models.SplitStatusReadyForPickup,
			models.SplitStatusOutForDelivery},
	},
	models.CourierCodeCancelled: {taskStatus: models.CourierStatusCancelled},
}

// HandleCourierCallback applies one courier status callback. Callbacks are
// idempotent by status code: a code less than or equal to the last applied one
// leaves both task and split unchanged.
func (f *Fulfillment) HandleCourierCallback(ctx context.Context, taskID string, code int, message string, rider *models.RiderInfo) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.HandleCourierCallback")
	defer span.End()

	tr, ok := courierTransitions[code]
	if !ok {
		util.CourierCallbacksTotal.WithLabelValues("unknown").Inc()
		return fmt.Errorf("unknown courier status code %d: %w", code, ErrInvalidTransition)
	}
	util.CourierCallbacksTotal.WithLabelValues(strconv.Itoa(code)).Inc()

	task, err := f.store.GetCourierTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("callback for unknown task: %w", ErrMissingLinkage)
	}

	applied, err := f.store.AdvanceCourierTask(ctx, taskID, tr.taskStatus, code, message, rider)
	if err != nil {
		return err
	}
	if !applied {
		// The status is stale but the location ping may still be fresher.
		if rider != nil && (rider.Latitude != 0 || rider.Longitude != 0) {
			if err := f.store.UpdateCourierLocation(ctx, taskID, rider.Latitude, rider.Longitude); err != nil {
				f.logger.Error("Failed to update courier location", zap.Error(err))
			}
		}
		f.logger.Info("Stale courier callback ignored",
			zap.String("task_id", taskID),
			zap.Int("code", code),
			zap.Int("current", task.StatusCode))
		return nil
	}

	if rider != nil && rider.Name != "" {
		if err := f.store.SetSplitRider(ctx, task.SplitID, rider.Name, rider.Phone); err != nil {
			f.logger.Error("Failed to record rider info", zap.Error(err))
		}
	}

	if code == models.CourierCodeCancelled {
		// Courier-side cancel drops the linkage so the split can re-dispatch.
		if err := f.store.SetSplitCourierTask(ctx, task.SplitID, ""); err != nil {
			return err
		}
		return f.store.SetSplitError(ctx, task.SplitID, "courier task cancelled by provider")
	}

	if tr.toStatus == "" {
		return nil
	}

	sp, err := f.store.GetSplitOrder(ctx, task.SplitID)
	if err != nil {
		return err
	}
	fromStatus := sp.OrderStatus

	moved, err := f.store.TransitionSplitStatus(ctx, task.SplitID, tr.toStatus, tr.from)
	if err != nil {
		return err
	}
	if !moved {
		// Split already at or past this stage; the monotonic code check has
		// done its job, nothing to do.
		return nil
	}
	util.TransitionsTotal.WithLabelValues(tr.toStatus).Inc()

	if tr.toStatus == models.SplitStatusDelivered {
		if err := f.commerce.MarkFulfilled(ctx, sp.OrderRefID, sp.SplitID); err != nil {
			f.logger.Error("Failed to mark order fulfilled on platform",
				zap.String("split_id", sp.SplitID),
				zap.Error(err))
			if serr := f.store.SetSplitError(ctx, sp.SplitID, fmt.Sprintf("mark fulfilled: %v", err)); serr != nil {
				f.logger.Error("Failed to record split error", zap.Error(serr))
			}
		}
	}

	if f.publisher != nil {
		event := &models.SplitStatusChangedEvent{
			BaseEvent:  newBaseEvent(models.EventTypeSplitStatusChange),
			SplitID:    sp.SplitID,
			FromStatus: fromStatus,
			ToStatus:   tr.toStatus,
			TaskID:     taskID,
		}
		if err := f.publisher.PublishSplitStatusChanged(ctx, event); err != nil {
			f.logger.Error("Failed to publish SplitStatusChanged event", zap.Error(err))
		}
	}
	return nil
}

// Cancel cancels a split in any non-terminal state: the split's reserved
// quantities return to sellable stock exactly once, any courier task is
// cancelled, and the platform is told to drop the split's line items.
// Cancelling an already-cancelled split is a no-op.
func (f *Fulfillment) Cancel(ctx context.Context, splitID, reason string) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.Cancel")
	defer span.End()

	sp, err := f.store.GetSplitOrder(ctx, splitID)
	if err != nil {
		return err
	}

	cancelled, err := f.store.CancelSplitOrder(ctx, splitID, reason)
	if err != nil {
		return err
	}
	if !cancelled {
		if sp.OrderStatus == models.SplitStatusCancelled {
			return nil
		}
		util.TransitionsRejected.WithLabelValues("terminal").Inc()
		return fmt.Errorf("split %s is %s: %w", splitID, sp.OrderStatus, ErrInvalidTransition)
	}

	util.SplitsCancelledTotal.Inc()
	util.TransitionsTotal.WithLabelValues(models.SplitStatusCancelled).Inc()

	// Guarded by the one-shot cancel above, so the release applies exactly once.
	for _, item := range sp.Items {
		if err := f.stock.Release(ctx, sp.StoreID, item.SKU, item.Quantity); err != nil {
			f.logger.Error("Failed to release stock on cancel",
				zap.String("split_id", splitID),
				zap.String("sku", item.SKU),
				zap.Error(err))
			continue
		}
		if f.publisher != nil {
			event := &models.StockReleasedEvent{
				BaseEvent: newBaseEvent(models.EventTypeStockReleased),
				SplitID:   splitID,
				StoreID:   sp.StoreID,
				SKU:       item.SKU,
				Qty:       item.Quantity,
			}
			if err := f.publisher.PublishStockReleased(ctx, event); err != nil {
				f.logger.Error("Failed to publish StockReleased event", zap.Error(err))
			}
		}
	}

	if sp.CourierTaskID != "" {
		if err := f.courier.CancelTask(ctx, sp.CourierTaskID); err != nil {
			f.logger.Error("Failed to cancel courier task",
				zap.String("split_id", splitID),
				zap.String("task_id", sp.CourierTaskID),
				zap.Error(err))
			if serr := f.store.SetSplitError(ctx, splitID, fmt.Sprintf("courier cancel: %v", err)); serr != nil {
				f.logger.Error("Failed to record split error", zap.Error(serr))
			}
		}
	}

	if err := f.commerce.CancelLineItems(ctx, sp.OrderRefID, sp.Items); err != nil {
		f.logger.Error("Failed to cancel line items on platform",
			zap.String("split_id", splitID),
			zap.Error(err))
		if serr := f.store.SetSplitError(ctx, splitID, fmt.Sprintf("platform cancel: %v", err)); serr != nil {
			f.logger.Error("Failed to record split error", zap.Error(serr))
		}
	}

	f.logger.Info("Split cancelled",
		zap.String("split_id", splitID),
		zap.String("reason", reason))

	if f.publisher != nil {
		event := &models.SplitCancelledEvent{
			BaseEvent:  newBaseEvent(models.EventTypeSplitCancelled),
			SplitID:    splitID,
			OrderRefID: sp.OrderRefID,
			Reason:     reason,
		}
		if err := f.publisher.PublishSplitCancelled(ctx, event); err != nil {
			f.logger.Error("Failed to publish SplitCancelled event", zap.Error(err))
		}
	}
	return nil
}

// Refund issues a refund for a split against the order's original payment
// transaction. Rejected with ErrMissingLinkage when no successful transaction
// exists; the split's financial status is only updated after the provider
// accepts the refund.
func (f *Fulfillment) Refund(ctx context.Context, splitID string) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.Refund")
	defer span.End()

	sp, err := f.store.GetSplitOrder(ctx, splitID)
	if err != nil {
		return err
	}

	if sp.FinancialStatus == models.SplitFinancialRefunded {
		return nil
	}

	tx, err := f.payment.FindOriginalTransaction(ctx, sp.OrderRefID)
	if err != nil {
		return err
	}
	if tx == nil {
		util.RefundsRejectedTotal.WithLabelValues("no_transaction").Inc()
		return fmt.Errorf("no original transaction for order %s: %w", sp.OrderRefID, ErrMissingLinkage)
	}

	amount := sp.PayoutTotal
	if amount == 0 {
		for _, item := range sp.Items {
			amount += item.UnitPrice * int64(item.Quantity)
		}
	}

	refundID, err := f.payment.Refund(ctx, sp.OrderRefID, tx, amount)
	if err != nil {
		util.RefundsRejectedTotal.WithLabelValues("provider_error").Inc()
		if serr := f.store.SetSplitError(ctx, splitID, fmt.Sprintf("refund: %v", err)); serr != nil {
			f.logger.Error("Failed to record split error", zap.Error(serr))
		}
		return err
	}

	if err := f.store.SetSplitFinancialStatus(ctx, splitID, models.SplitFinancialRefunded); err != nil {
		return err
	}
	if err := f.commerce.SetFinancialStatus(ctx, sp.OrderRefID, models.FinancialStatusRefunded); err != nil {
		f.logger.Error("Failed to update platform financial status",
			zap.String("order_ref_id", sp.OrderRefID),
			zap.Error(err))
	}

	util.RefundsIssuedTotal.Inc()
	f.logger.Info("Refund issued",
		zap.String("split_id", splitID),
		zap.String("refund_id", refundID),
		zap.Int64("amount", amount))

	if f.publisher != nil {
		event := &models.RefundIssuedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeRefundIssued),
			SplitID:       splitID,
			OrderRefID:    sp.OrderRefID,
			TransactionID: tx.ID,
			RefundID:      refundID,
			Amount:        amount,
		}
		if err := f.publisher.PublishRefundIssued(ctx, event); err != nil {
			f.logger.Error("Failed to publish RefundIssued event", zap.Error(err))
		}
	}
	return nil
}

// PlaceOnHold puts a manual hold on a split.
func (f *Fulfillment) PlaceOnHold(ctx context.Context, splitID string) error {
	sp, err := f.store.GetSplitOrder(ctx, splitID)
	if err != nil {
		return err
	}
	if models.TerminalStatus(sp.OrderStatus) {
		return fmt.Errorf("split %s is %s: %w", splitID, sp.OrderStatus, ErrInvalidTransition)
	}
	return f.store.SetSplitOnHold(ctx, splitID, models.HoldManual)
}

// HandlePaymentSuccess consumes a payment event and clears payment holds on
// every split of the order. Idempotent by event ID.
func (f *Fulfillment) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.HandlePaymentSuccess")
	defer span.End()

	processed, err := f.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		f.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := f.store.ClearHoldsForOrder(ctx, event.OrderRefID); err != nil {
		return fmt.Errorf("failed to clear holds: %w", err)
	}

	if err := f.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		f.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	f.logger.Info("Payment holds cleared", zap.String("order_ref_id", event.OrderRefID))
	return nil
}

// HandlePaymentRefunded consumes a refund event from the payment stream and
// refunds every split of the order. Idempotent by event ID; a partial failure
// is retried safely because Refund no-ops on already-refunded splits.
func (f *Fulfillment) HandlePaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	ctx, span := util.StartSpan(ctx, "Fulfillment.HandlePaymentRefunded")
	defer span.End()

	processed, err := f.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		f.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	splits, err := f.store.GetSplitsByOrderRef(ctx, event.OrderRefID)
	if err != nil {
		return fmt.Errorf("failed to load splits for order %s: %w", event.OrderRefID, err)
	}

	for _, sp := range splits {
		if err := f.Refund(ctx, sp.SplitID); err != nil {
			return fmt.Errorf("failed to refund split %s: %w", sp.SplitID, err)
		}
	}

	if err := f.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		f.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	f.logger.Info("Order refunded from payment stream",
		zap.String("order_ref_id", event.OrderRefID),
		zap.String("refund_id", event.RefundID),
		zap.Int("splits", len(splits)))
	return nil
}
