package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carnimore/checkout/internal/core/events"
	"github.com/carnimore/checkout/internal/notify"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
	"github.com/carnimore/checkout/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish payment events by hand, e.g. to wake status pollers after a manual database fix.`,
}

var notifyStatusCmd = &cobra.Command{
	Use:   "notify [order-id] [pending|paid|failed]",
	Short: "Publish a status notification for an order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishStatus(args[0], args[1])
	},
}

var (
	eventTransactionID string
	eventMessage       string
)

func publishStatus(orderID, status string) error {
	if !order.ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}

	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !config.Redis.Enabled() {
		return fmt.Errorf("redis is not configured")
	}
	lg := logger.L()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := notify.Connect(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)
	notify.NewNotifier(rdb, lg).RegisterEventHandlers(eventBus)

	event := events.NewPaymentStatusEvent(orderID, status, eventTransactionID, eventMessage)
	lg.Info("publishing status event", "event_type", event.EventType(), "event_id", event.EventID(), "order_id", orderID)

	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	lg.Info("status event published")
	return nil
}

func init() {
	notifyStatusCmd.Flags().StringVar(&eventTransactionID, "transaction-id", "", "Gateway transaction id to include")
	notifyStatusCmd.Flags().StringVar(&eventMessage, "message", "", "Response message to include")

	eventCmd.AddCommand(notifyStatusCmd)
	rootCmd.AddCommand(eventCmd)
}
