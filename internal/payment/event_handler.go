package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carnimore/checkout/internal/core/events"
)

// EventHandler writes the payment audit trail to the log.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger,
	}
}

func (h *EventHandler) HandlePaymentInitiated(ctx context.Context, event events.Event) error {
	initiated, ok := event.(*events.PaymentInitiatedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment initiated handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentInitiatedEvent, got %T", event)
	}

	h.logger.Info("payment initiated",
		"order_id", initiated.OrderID,
		"amount", initiated.Amount,
		"event_id", initiated.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentStatus(ctx context.Context, event events.Event) error {
	statusEvent, ok := event.(*events.PaymentStatusEvent)
	if !ok {
		h.logger.Error("invalid event type for payment status handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentStatusEvent, got %T", event)
	}

	h.logger.Info("payment status reconciled",
		"order_id", statusEvent.OrderID,
		"status", statusEvent.Status,
		"transaction_id", statusEvent.TransactionID,
		"message", statusEvent.Message,
		"event_type", statusEvent.EventType(),
		"event_id", statusEvent.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentInitiated, h.HandlePaymentInitiated)
	for _, eventType := range events.StatusEventTypes {
		eventBus.Subscribe(eventType, h.HandlePaymentStatus)
	}

	h.logger.Info("payment event handlers registered",
		"handlers", append([]string{events.EventTypePaymentInitiated}, events.StatusEventTypes...))
}
