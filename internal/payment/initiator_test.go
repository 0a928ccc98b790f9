package payment_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	orderDatamodel "github.com/carnimore/checkout/internal/core/datamodel/order"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
	"github.com/carnimore/checkout/internal/paymentgateway"
)

func validChargeRequest() *payment.ChargeRequest {
	address := orderDatamodel.Address{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Address1:  "1 Main St",
		City:      "Austin",
		State:     "TX",
		Zip:       "73301",
	}
	return &payment.ChargeRequest{
		OrderID:    "ORD-1",
		CardNumber: "4111 1111 1111 1111",
		ExpMonth:   7,
		ExpYear:    2030,
		CVV:        "123",
		Amount:     decimal.RequireFromString("49.99"),
		Email:      "ada@example.com",
		Phone:      "555-0100",
		Billing:    address,
		Shipping:   address,
		Items: []orderDatamodel.LineItem{
			{ProductID: "P1", Name: "Scope", Quantity: 1, Price: decimal.RequireFromString("49.99")},
		},
	}
}

func validationFields(err error) []string {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue())
	details, ok := appErr.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	var fields []string
	for _, e := range details.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

var _ = Describe("Initiator", func() {
	var (
		calls     *callLog
		repo      *mockOrderRepository
		gateway   *mockGateway
		publisher *recordingPublisher
		initiator *payment.Initiator
		ctx       context.Context
	)

	BeforeEach(func() {
		calls = &callLog{}
		repo = newMockOrderRepository(calls)
		gateway = &mockGateway{log: calls, repo: repo}
		publisher = &recordingPublisher{}
		initiator = payment.NewInitiator(repo, gateway, publisher, fixedIDs{id: "ORD-GEN-1"}, payment.InitiatorConfig{
			AccountID:               "ACC-1",
			RestrictKey:             "s3cret",
			TransactionType:         "CREDITCARD",
			TransactionIndustryType: "WEB",
			PostbackURL:             "https://shop.example.com/api/v1/payments/postback",
			PostbackDescription:     "Carnimore order",
		}, testLogger())
		ctx = context.Background()
	})

	Context("with a valid request", func() {
		It("creates the pending order before calling the gateway", func() {
			// When
			result, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.OrderID).To(Equal("ORD-1"))
			Expect(calls.all()).To(Equal([]string{"insert:ORD-1", "authorize:ORD-1"}))
			Expect(gateway.sawPending).To(BeTrue())

			stored := repo.orders["ORD-1"]
			Expect(stored.PaymentStatus).To(Equal(order.StatusPending))
			Expect(stored.Amount.Equal(decimal.RequireFromString("49.99"))).To(BeTrue())
			Expect(stored.CardLast4).To(Equal("1111"))
		})

		It("sends credentials, amount and the postback parameters", func() {
			// When
			_, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(gateway.requests).To(HaveLen(1))
			form := gateway.requests[0].Form()
			Expect(form.Get("AccountID")).To(Equal("ACC-1"))
			Expect(form.Get("Amount")).To(Equal("49.99"))
			Expect(form.Get("BillingName")).To(Equal("Ada Lovelace"))
			Expect(form.Get("BillingCountry")).To(Equal("US"))
			Expect(form.Get("CardNumber")).To(Equal("4111111111111111"))
			Expect(form.Get("CardExpMonth")).To(Equal("07"))
			Expect(form.Get("Postback.RestrictKey")).To(Equal("s3cret"))
			Expect(form.Get("Postback.OrderID")).To(Equal("ORD-1"))
			Expect(form.Get("Postback.ID")).To(Equal("https://shop.example.com/api/v1/payments/postback"))
		})

		It("never stores the full card number or cvv", func() {
			// When
			_, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			Expect(err).ToNot(HaveOccurred())
			stored, _ := json.Marshal(repo.orders["ORD-1"])
			Expect(string(stored)).ToNot(ContainSubstring("4111111111111111"))
			Expect(string(stored)).ToNot(ContainSubstring(`"123"`))
		})

		It("generates an order id when none is supplied", func() {
			// Given
			req := validChargeRequest()
			req.OrderID = ""

			// When
			result, err := initiator.Initiate(ctx, req)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.OrderID).To(Equal("ORD-GEN-1"))
			Expect(repo.orders).To(HaveKey("ORD-GEN-1"))
		})

		It("publishes payment.initiated after acceptance", func() {
			_, err := initiator.Initiate(ctx, validChargeRequest())

			Expect(err).ToNot(HaveOccurred())
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentInitiated}))
		})

		It("does not require a shipping address for dealer delivery", func() {
			// Given
			req := validChargeRequest()
			req.Shipping = orderDatamodel.Address{}
			req.Dealer = &orderDatamodel.Dealer{Name: "Range Supply", LicenseNumber: "1-23-456-78-9A-12345"}

			// When
			_, err := initiator.Initiate(ctx, req)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(string(repo.orders["ORD-1"].Dealer)).To(ContainSubstring("Range Supply"))
			Expect(repo.orders["ORD-1"].ShippingAddress).To(BeEmpty())
		})
	})

	Context("when validation fails", func() {
		It("rejects before touching the store or the gateway", func() {
			// Given
			req := validChargeRequest()
			req.Billing.City = ""
			req.Amount = decimal.Zero

			// When
			_, err := initiator.Initiate(ctx, req)

			// Then
			Expect(err).To(HaveOccurred())
			Expect(validationFields(err)).To(ConsistOf("amount", "billing.city"))
			Expect(calls.all()).To(BeEmpty())
		})

		It("requires shipping fields when the dealer is incomplete", func() {
			// Given
			req := validChargeRequest()
			req.Shipping = orderDatamodel.Address{}
			req.Dealer = &orderDatamodel.Dealer{Name: "Range Supply"}

			// When
			_, err := initiator.Initiate(ctx, req)

			// Then
			Expect(validationFields(err)).To(ConsistOf(
				"shipping.firstName", "shipping.lastName", "shipping.address1",
				"shipping.city", "shipping.state", "shipping.zip",
			))
		})

		It("rejects a malformed order id", func() {
			req := validChargeRequest()
			req.OrderID = "ORD 1; DROP"

			_, err := initiator.Initiate(ctx, req)

			Expect(validationFields(err)).To(ConsistOf("orderId"))
		})

		It("rejects an order without items", func() {
			req := validChargeRequest()
			req.Items = nil

			_, err := initiator.Initiate(ctx, req)

			Expect(validationFields(err)).To(ConsistOf("items"))
		})
	})

	Context("when the pending order cannot be created", func() {
		It("never calls the gateway for a duplicate order id", func() {
			// Given
			_, err := initiator.Initiate(ctx, validChargeRequest())
			Expect(err).ToNot(HaveOccurred())

			// When
			_, err = initiator.Initiate(ctx, validChargeRequest())

			// Then
			Expect(err).To(MatchError(internal.ErrOrderAlreadyExists))
			Expect(gateway.requests).To(HaveLen(1))
		})

		It("never calls the gateway when the store fails", func() {
			// Given
			repo.insertErr = internal.NewPersistenceError("failed to insert order", errors.New("connection refused"))

			// When
			_, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePersistenceFailed))
			Expect(gateway.requests).To(BeEmpty())
		})
	})

	Context("when the gateway does not accept the charge", func() {
		It("reports an unreachable gateway and leaves the order pending", func() {
			// Given
			gateway.err = errors.New("dial tcp: connection refused")

			// When
			_, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayUnavailable))
			Expect(repo.orders["ORD-1"].PaymentStatus).To(Equal(order.StatusPending))
			Expect(publisher.types()).To(BeEmpty())
		})

		It("reports a non-2xx answer as a rejection", func() {
			// Given
			gateway.err = &paymentgateway.AcceptanceError{StatusCode: 400, Body: "bad account"}

			// When
			_, err := initiator.Initiate(ctx, validChargeRequest())

			// Then
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayRejected))
		})
	})
})
