package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/carnimore/checkout/internal"
	orderDatamodel "github.com/carnimore/checkout/internal/core/datamodel/order"
	"github.com/carnimore/checkout/internal/order"
	orderPostgres "github.com/carnimore/checkout/internal/order/postgres"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample orders",
	Long:  `Seed the database with one order per payment status for development and for exercising the ops routes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if clearData {
			if err := gormDB.WithContext(ctx).Exec("DELETE FROM orders WHERE order_id LIKE 'SEED-%'").Error; err != nil {
				return fmt.Errorf("failed to clear seeded orders: %w", err)
			}
			fmt.Println("Cleared seeded orders")
		}

		repo := orderPostgres.NewOrderRepository(gormDB)
		for _, seed := range seedOrders() {
			err := repo.Insert(ctx, seed.order)
			if errors.Is(err, internal.ErrOrderAlreadyExists) {
				fmt.Println("order already exists:", seed.order.OrderID)
				continue
			}
			if err != nil {
				return err
			}

			if seed.outcome != nil {
				if err := repo.UpdateByOrderID(ctx, seed.order.OrderID, *seed.outcome); err != nil {
					return err
				}
			}
			fmt.Println("Seeded order:", seed.order.OrderID, seed.order.Amount.StringFixed(2))
		}
		return nil
	},
}

type seedOrder struct {
	order   *order.Order
	outcome *order.Reconciliation
}

func seedOrders() []seedOrder {
	billing, _ := json.Marshal(orderDatamodel.Address{
		FirstName: "Sam", LastName: "Hunter", Address1: "12 Ridge Rd",
		City: "Bozeman", State: "MT", Zip: "59715", Country: "US",
	})
	dealer, _ := json.Marshal(orderDatamodel.Dealer{
		Name: "Big Sky Outfitters", LicenseNumber: "9-81-031-01-8C-12345",
		Address1: "400 Main St", City: "Bozeman", State: "MT", Zip: "59715",
	})
	items, _ := json.Marshal([]orderDatamodel.LineItem{
		{ProductID: "RIFLE-308", Name: "Bolt action rifle .308", Quantity: 1, Price: decimal.RequireFromString("849.00")},
	})
	capture := func(response, xactID string) datatypes.JSON {
		raw, _ := json.Marshal(map[string]string{"format": "delimited", "raw": "FullResponse=" + response, "transactionId": xactID})
		return datatypes.JSON(raw)
	}

	newOrder := func(id, last4 string) *order.Order {
		return &order.Order{
			OrderID:        id,
			PaymentStatus:  order.StatusPending,
			Amount:         decimal.RequireFromString("849.00"),
			Email:          "sam.hunter@example.com",
			BillingAddress: datatypes.JSON(billing),
			Dealer:         datatypes.JSON(dealer),
			Items:          datatypes.JSON(items),
			CardLast4:      last4,
		}
	}

	return []seedOrder{
		{order: newOrder("SEED-PENDING", "1111")},
		{
			order: newOrder("SEED-PAID", "1111"),
			outcome: &order.Reconciliation{
				PaymentStatus: order.StatusPaid, PaymentProcessorID: "SEED-T1", ResponseMessage: "APPROVED",
				PaymentProcessorResponse: capture("YAPPROVED", "SEED-T1"),
			},
		},
		{
			order: newOrder("SEED-FAILED", "0002"),
			outcome: &order.Reconciliation{
				PaymentStatus: order.StatusFailed, PaymentProcessorID: "SEED-T2", ResponseMessage: "DECLINED",
				PaymentProcessorResponse: capture("NDECLINED", "SEED-T2"),
			},
		},
	}
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear previously seeded orders before seeding")
}
