package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "payment:status:"

// ChannelFor names the per-order channel status changes are published on.
func ChannelFor(orderID string) string {
	return channelPrefix + orderID
}

// StatusMessage is the payload published on an order's channel.
type StatusMessage struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	Message       string    `json:"message,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewStatusMessage(event *events.PaymentStatusEvent) StatusMessage {
	return StatusMessage{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		OrderID:       event.OrderID,
		Status:        event.Status,
		TransactionID: event.TransactionID,
		Message:       event.Message,
		OccurredAt:    event.OccurredAt(),
	}
}

// Notifier fans reconciled statuses out over Redis pub/sub so pollers
// waiting on another instance wake up without re-polling the database.
type Notifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewNotifier(rdb *redis.Client, logger *slog.Logger) *Notifier {
	return &Notifier{rdb: rdb, logger: logger}
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (n *Notifier) Publish(ctx context.Context, msg StatusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode status message: %w", err)
	}
	if err := n.rdb.Publish(ctx, ChannelFor(msg.OrderID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status for %s: %w", msg.OrderID, err)
	}
	return nil
}

// HandleStatusEvent is the event bus subscriber for reconciled postbacks.
func (n *Notifier) HandleStatusEvent(ctx context.Context, event events.Event) error {
	statusEvent, ok := event.(*events.PaymentStatusEvent)
	if !ok {
		return fmt.Errorf("expected PaymentStatusEvent, got %T", event)
	}

	ctx, cancel := internal.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.Publish(ctx, NewStatusMessage(statusEvent)); err != nil {
		return err
	}
	n.logger.Debug("status notification published",
		"order_id", statusEvent.OrderID,
		"status", statusEvent.Status)
	return nil
}

func (n *Notifier) RegisterEventHandlers(eventBus *events.EventBus) {
	for _, eventType := range events.StatusEventTypes {
		eventBus.Subscribe(eventType, n.HandleStatusEvent)
	}
}

// WaitForStatus subscribes to the order's channel, then calls ready. If ready
// reports the order already settled it returns at once; otherwise it blocks
// for the first message or until timeout, returning context.DeadlineExceeded
// on timeout.
func (n *Notifier) WaitForStatus(ctx context.Context, orderID string, timeout time.Duration, ready func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub := n.rdb.Subscribe(waitCtx, ChannelFor(orderID))
	defer sub.Close()

	// Receive blocks until the SUBSCRIBE is confirmed
	if _, err := sub.Receive(waitCtx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ChannelFor(orderID), err)
	}

	done, err := ready(waitCtx)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	select {
	case msg, ok := <-sub.Channel():
		if !ok {
			return fmt.Errorf("subscription to %s closed", ChannelFor(orderID))
		}
		n.logger.Debug("status notification received", "order_id", orderID, "size", len(msg.Payload))
		return nil
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

// Ping reports whether Redis is reachable, for the health check.
func (n *Notifier) Ping(ctx context.Context) error {
	return n.rdb.Ping(ctx).Err()
}

func (n *Notifier) Close() error {
	return n.rdb.Close()
}
