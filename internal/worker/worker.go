package worker

import (
	"context"
	"log"

	"fulfillment-service/internal/adapters"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
)

// OrderWorker consumes order events and drives the split engine, so order
// intake can run asynchronously from webhook delivery.
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(
	consumer *broker.Consumer,
	engine *service.SplitEngine,
	commerce adapters.CommerceClient,
) *OrderWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderReceived(func(ctx context.Context, event *models.OrderReceivedEvent) error {
		order, err := commerce.GetOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		_, err = engine.SplitOrder(ctx, order)
		return err
	})

	return &OrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	log.Println("Starting order worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	log.Println("Stopping order worker...")
	return w.consumer.Close()
}

// PaymentWorker consumes payment events and feeds them to the state machine.
// A successful payment clears the order's payment holds; a refund propagates
// to every split of the order.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(
	consumer *broker.Consumer,
	fulfillment *service.Fulfillment,
) *PaymentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(fulfillment.HandlePaymentSuccess)
	eventHandler.OnPaymentRefunded(fulfillment.HandlePaymentRefunded)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	log.Println("Starting payment worker...")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	log.Println("Stopping payment worker...")
	return pw.consumer.Close()
}
