package payment_test

import (
	"context"
	"encoding/json"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	"github.com/carnimore/checkout/internal/order"
	orderpostgres "github.com/carnimore/checkout/internal/order/postgres"
	"github.com/carnimore/checkout/internal/payment"
)

const restrictKey = "s3cret"

var _ = Describe("Ingestor", func() {
	var (
		db        *gorm.DB
		repo      order.RepositoryAPI
		publisher *recordingPublisher
		ingestor  *payment.Ingestor
		ctx       context.Context
	)

	seed := func(orderID string) {
		Expect(repo.Insert(ctx, &order.Order{
			OrderID: orderID,
			Amount:  decimal.RequireFromString("49.99"),
			Email:   "buyer@example.com",
		})).To(Succeed())
	}

	load := func(orderID string) *order.Order {
		o, err := repo.GetByOrderID(ctx, orderID)
		Expect(err).ToNot(HaveOccurred())
		return o
	}

	BeforeEach(func() {
		db = openTestDB()
		repo = orderpostgres.NewOrderRepository(db)
		publisher = &recordingPublisher{}
		ingestor = payment.NewIngestor(repo, publisher, payment.IngestorConfig{RestrictKey: restrictKey}, testLogger())
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	Context("with an approved JSON postback", func() {
		It("marks the order paid and acknowledges with the gateway identifiers", func() {
			// Given
			seed("ORD-1")
			body := `{"FullResponse":"YAPPROVED","XactID":"T1","AuthCode":"A55","AVSResponse":"Y","CVV2Response":"M",` +
				`"Postback":{"OrderID":"ORD-1","RestrictKey":"s3cret"}}`

			// When
			ack, err := ingestor.Ingest(ctx, []byte(body))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(*ack).To(Equal(payment.Acknowledgement{
				Status:        order.StatusPaid,
				Message:       "APPROVED",
				TransactionID: "T1",
				AuthCode:      "A55",
				OrderID:       "ORD-1",
			}))

			stored := load("ORD-1")
			Expect(stored.PaymentStatus).To(Equal(order.StatusPaid))
			Expect(*stored.PaymentProcessorID).To(Equal("T1"))
			Expect(*stored.ResponseMessage).To(Equal("APPROVED"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentCompleted}))
		})

		It("keeps the secret out of the stored capture", func() {
			// Given
			seed("ORD-1")
			body := `{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-1","RestrictKey":"s3cret"}}`

			// When
			_, err := ingestor.Ingest(ctx, []byte(body))

			// Then
			Expect(err).ToNot(HaveOccurred())
			stored := load("ORD-1")
			Expect(string(stored.PaymentProcessorResponse)).ToNot(ContainSubstring(restrictKey))

			var capture map[string]interface{}
			Expect(json.Unmarshal(stored.PaymentProcessorResponse, &capture)).To(Succeed())
			Expect(capture).To(HaveKeyWithValue("format", "json"))
			Expect(capture).To(HaveKeyWithValue("transactionId", "T1"))
			Expect(capture["fields"]).To(HaveKeyWithValue("Postback.RestrictKey", "[REDACTED]"))
			Expect(capture["outcome"]).To(HaveKeyWithValue("status", "paid"))
		})
	})

	Context("with equivalent delimited and JSON bodies", func() {
		It("reaches the same status regardless of encoding", func() {
			// Given
			seed("ORD-J")
			seed("ORD-D")

			// When
			_, errJSON := ingestor.Ingest(ctx, []byte(`{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-J"}}`))
			_, errDelimited := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED,XactID=T1,Postback.OrderID=ORD-D"))

			// Then
			Expect(errJSON).ToNot(HaveOccurred())
			Expect(errDelimited).ToNot(HaveOccurred())
			Expect(load("ORD-J").PaymentStatus).To(Equal(order.StatusPaid))
			Expect(load("ORD-D").PaymentStatus).To(Equal(order.StatusPaid))
			Expect(*load("ORD-J").ResponseMessage).To(Equal(*load("ORD-D").ResponseMessage))
		})
	})

	Context("with a declined delimited postback", func() {
		It("marks the order failed", func() {
			// Given
			seed("ORD-2")

			// When
			ack, err := ingestor.Ingest(ctx, []byte("FullResponse=NDECLINED;XactID=T2;Postback.OrderID=ORD-2"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.Status).To(Equal(order.StatusFailed))
			Expect(ack.Message).To(Equal("DECLINED"))
			stored := load("ORD-2")
			Expect(stored.PaymentStatus).To(Equal(order.StatusFailed))
			Expect(*stored.ResponseMessage).To(Equal("DECLINED"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentFailed}))
		})
	})

	Context("when the same postback is delivered twice", func() {
		It("ends in the same row state without error", func() {
			// Given
			seed("ORD-1")
			body := []byte("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1;Postback.RestrictKey=s3cret")
			_, err := ingestor.Ingest(ctx, body)
			Expect(err).ToNot(HaveOccurred())
			first := load("ORD-1")

			// When
			ack, err := ingestor.Ingest(ctx, body)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.Status).To(Equal(order.StatusPaid))
			second := load("ORD-1")
			Expect(second.PaymentStatus).To(Equal(first.PaymentStatus))
			Expect(*second.PaymentProcessorID).To(Equal("T1"))
			Expect(*second.ResponseMessage).To(Equal(*first.ResponseMessage))
			Expect(second.PaymentProcessorResponse).To(MatchJSON(first.PaymentProcessorResponse))
		})
	})

	Context("when duplicates of one postback arrive at the same time", func() {
		It("leaves a single consistent reconciliation", func() {
			// Given
			sqlDB, _ := db.DB()
			_ = sqlDB.Close()
			db = openFileTestDB(GinkgoT().TempDir())
			repo = orderpostgres.NewOrderRepository(db)
			ingestor = payment.NewIngestor(repo, publisher, payment.IngestorConfig{RestrictKey: restrictKey}, testLogger())
			seed("ORD-1")
			body := []byte("FullResponse=YAPPROVED;XactID=T1;AuthCode=A55;Postback.OrderID=ORD-1;Postback.RestrictKey=s3cret")

			// When
			const deliveries = 8
			errs := make(chan error, deliveries)
			var wg sync.WaitGroup
			for n := 0; n < deliveries; n++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := ingestor.Ingest(ctx, body)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			// Then
			for err := range errs {
				Expect(err).ToNot(HaveOccurred())
			}
			stored := load("ORD-1")
			Expect(stored.PaymentStatus).To(Equal(order.StatusPaid))
			Expect(*stored.PaymentProcessorID).To(Equal("T1"))
			Expect(*stored.ResponseMessage).To(Equal("APPROVED"))

			var capture map[string]interface{}
			Expect(json.Unmarshal(stored.PaymentProcessorResponse, &capture)).To(Succeed())
			Expect(capture).To(HaveKeyWithValue("transactionId", "T1"))
			Expect(capture).To(HaveKeyWithValue("authCode", "A55"))

			var count int64
			db.Model(&order.Order{}).Count(&count)
			Expect(count).To(Equal(int64(1)))
		})
	})

	Context("with a short restrict key", func() {
		BeforeEach(func() {
			ingestor = payment.NewIngestor(repo, publisher, payment.IngestorConfig{RestrictKey: "1"}, testLogger())
		})

		It("redacts only the key field in a delimited capture", func() {
			// Given
			seed("ORD-1")

			// When
			_, err := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1;Postback.RestrictKey=1"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			var capture map[string]interface{}
			Expect(json.Unmarshal(load("ORD-1").PaymentProcessorResponse, &capture)).To(Succeed())
			Expect(capture).To(HaveKeyWithValue("raw",
				"FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1;Postback.RestrictKey=[REDACTED]"))
		})

		It("redacts only the key field in a JSON capture", func() {
			// Given
			seed("ORD-1")

			// When
			_, err := ingestor.Ingest(ctx, []byte(`{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-1","RestrictKey":"1"}}`))

			// Then
			Expect(err).ToNot(HaveOccurred())
			var capture struct {
				Raw string `json:"raw"`
			}
			Expect(json.Unmarshal(load("ORD-1").PaymentProcessorResponse, &capture)).To(Succeed())
			Expect(capture.Raw).To(MatchJSON(`{"FullResponse":"YAPPROVED","XactID":"T1","Postback":{"OrderID":"ORD-1","RestrictKey":"[REDACTED]"}}`))
		})
	})

	Context("with an ambiguous interim postback", func() {
		It("keeps the order pending until a terminal postback arrives", func() {
			// Given
			seed("ORD-3")

			// When
			ack, err := ingestor.Ingest(ctx, []byte("FullResponse=PREVIEW;XactID=T3;Postback.OrderID=ORD-3"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(ack.Status).To(Equal(order.StatusPending))
			Expect(load("ORD-3").PaymentStatus).To(Equal(order.StatusPending))
			Expect(*load("ORD-3").PaymentProcessorID).To(Equal("T3"))

			// When
			_, err = ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T3;Postback.OrderID=ORD-3"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(load("ORD-3").PaymentStatus).To(Equal(order.StatusPaid))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentPending, events.EventTypePaymentCompleted}))
		})
	})

	Context("when authentication fails", func() {
		It("rejects a mismatched restrict key without writing", func() {
			// Given
			seed("ORD-1")

			// When
			_, err := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1;Postback.RestrictKey=wrong"))

			// Then
			Expect(err).To(MatchError(internal.ErrPostbackUnauthorized))
			Expect(load("ORD-1").PaymentStatus).To(Equal(order.StatusPending))
			Expect(load("ORD-1").PaymentProcessorID).To(BeNil())
			Expect(publisher.types()).To(BeEmpty())
		})

		It("checks the bare RestrictKey field too", func() {
			seed("ORD-1")

			_, err := ingestor.Ingest(ctx, []byte(`{"FullResponse":"YAPPROVED","XactID":"T1","OrderID":"ORD-1","RestrictKey":"nope"}`))

			Expect(err).To(MatchError(internal.ErrPostbackUnauthorized))
			Expect(load("ORD-1").PaymentStatus).To(Equal(order.StatusPending))
		})

		It("rejects a missing key when the key is required", func() {
			// Given
			seed("ORD-1")
			strict := payment.NewIngestor(repo, publisher, payment.IngestorConfig{RestrictKey: restrictKey, RequireRestrictKey: true}, testLogger())

			// When
			_, err := strict.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1"))

			// Then
			Expect(err).To(MatchError(internal.ErrPostbackUnauthorized))
			Expect(load("ORD-1").PaymentStatus).To(Equal(order.StatusPending))
		})
	})

	Context("when correlation fails", func() {
		It("returns order not found for an unknown order and creates nothing", func() {
			// When
			_, err := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T9;Postback.OrderID=ORD-404"))

			// Then
			Expect(err).To(MatchError(internal.ErrOrderNotFound))
			var count int64
			db.Model(&order.Order{}).Count(&count)
			Expect(count).To(BeZero())
		})

		It("requires the order id", func() {
			_, err := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;XactID=T1"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePostbackMissingCorrelation))
		})

		It("requires the transaction id", func() {
			seed("ORD-1")

			_, err := ingestor.Ingest(ctx, []byte("FullResponse=YAPPROVED;Postback.OrderID=ORD-1"))

			Expect(err).To(MatchError(internal.ErrPostbackMissingTransaction))
			Expect(load("ORD-1").PaymentStatus).To(Equal(order.StatusPending))
		})
	})

	Context("when the body is in neither format", func() {
		It("fails with a format error", func() {
			_, err := ingestor.Ingest(ctx, []byte("not a postback"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePostbackUnrecognized))
		})
	})
})
