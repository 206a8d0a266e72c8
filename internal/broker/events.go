package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"fulfillment-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing fulfillment domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderReceived publishes OrderReceived event
func (ep *EventPublisher) PublishOrderReceived(ctx context.Context, event *models.OrderReceivedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishSplitCreated publishes SplitCreated event
func (ep *EventPublisher) PublishSplitCreated(ctx context.Context, event *models.SplitCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// PublishSplitConfirmed publishes SplitConfirmed event
func (ep *EventPublisher) PublishSplitConfirmed(ctx context.Context, event *models.SplitConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// PublishSplitStatusChanged publishes SplitStatusChanged event
func (ep *EventPublisher) PublishSplitStatusChanged(ctx context.Context, event *models.SplitStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// PublishSplitCancelled publishes SplitCancelled event
func (ep *EventPublisher) PublishSplitCancelled(ctx context.Context, event *models.SplitCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// PublishStockReleased publishes StockReleased event
func (ep *EventPublisher) PublishStockReleased(ctx context.Context, event *models.StockReleasedEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// PublishRefundIssued publishes RefundIssued event
func (ep *EventPublisher) PublishRefundIssued(ctx context.Context, event *models.RefundIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, "split-"+event.SplitID, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onPaymentSuccess  func(context.Context, *models.PaymentSuccessEvent) error
	onPaymentRefunded func(context.Context, *models.PaymentRefundedEvent) error
	onOrderReceived   func(context.Context, *models.OrderReceivedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentSuccess registers a handler for PaymentSuccess events
func (eh *EventHandler) OnPaymentSuccess(handler func(context.Context, *models.PaymentSuccessEvent) error) {
	eh.onPaymentSuccess = handler
}

// OnPaymentRefunded registers a handler for PaymentRefunded events
func (eh *EventHandler) OnPaymentRefunded(handler func(context.Context, *models.PaymentRefundedEvent) error) {
	eh.onPaymentRefunded = handler
}

// OnOrderReceived registers a handler for OrderReceived events
func (eh *EventHandler) OnOrderReceived(handler func(context.Context, *models.OrderReceivedEvent) error) {
	eh.onOrderReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypePaymentSuccess:
		if eh.onPaymentSuccess != nil {
			var event models.PaymentSuccessEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentSuccess event: %w", err)
			}
			return eh.onPaymentSuccess(ctx, &event)
		}

	case models.EventTypePaymentRefunded:
		if eh.onPaymentRefunded != nil {
			var event models.PaymentRefundedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentRefunded event: %w", err)
			}
			return eh.onPaymentRefunded(ctx, &event)
		}

	case models.EventTypeOrderReceived:
		if eh.onOrderReceived != nil {
			var event models.OrderReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderReceived event: %w", err)
			}
			return eh.onOrderReceived(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
