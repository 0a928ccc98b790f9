package events

import (
	"time"

	"github.com/carnimore/checkout/internal/core/datamodel/order"
	"github.com/google/uuid"
)

const (
	EventTypePaymentInitiated = "payment.initiated"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentPending   = "payment.pending"
)

// StatusEventTypes are the events raised by postback reconciliation.
var StatusEventTypes = []string{
	EventTypePaymentCompleted,
	EventTypePaymentFailed,
	EventTypePaymentPending,
}

type PaymentInitiatedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

func NewPaymentInitiatedEvent(orderID, amount string) *PaymentInitiatedEvent {
	return &PaymentInitiatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentInitiated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id": orderID,
				"amount":   amount,
			},
		},
		OrderID: orderID,
		Amount:  amount,
	}
}

// PaymentStatusEvent reports the outcome of one reconciled postback.
type PaymentStatusEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// NewPaymentStatusEvent picks the event type from the reconciled status:
// paid → payment.completed, failed → payment.failed, anything else → payment.pending.
func NewPaymentStatusEvent(orderID, status, transactionID, message string) *PaymentStatusEvent {
	eventType := EventTypePaymentPending
	switch status {
	case order.StatusPaid:
		eventType = EventTypePaymentCompleted
	case order.StatusFailed:
		eventType = EventTypePaymentFailed
	}

	return &PaymentStatusEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"status":         status,
				"transaction_id": transactionID,
				"message":        message,
			},
		},
		OrderID:       orderID,
		Status:        status,
		TransactionID: transactionID,
		Message:       message,
	}
}
