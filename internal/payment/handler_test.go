package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
	"github.com/carnimore/checkout/internal/transport"
)

type stubInitiator struct {
	result *payment.ChargeResult
	err    error
	got    *payment.ChargeRequest
}

func (s *stubInitiator) Initiate(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	s.got = req
	return s.result, s.err
}

type stubIngestor struct {
	ack  *payment.Acknowledgement
	err  error
	body []byte
}

func (s *stubIngestor) Ingest(ctx context.Context, body []byte) (*payment.Acknowledgement, error) {
	s.body = body
	return s.ack, s.err
}

type stubStatuses struct {
	view *payment.StatusView
	err  error
	wait time.Duration
}

func (s *stubStatuses) Status(ctx context.Context, orderID string, wait time.Duration) (*payment.StatusView, error) {
	s.wait = wait
	return s.view, s.err
}

var _ = Describe("Handler", func() {
	var (
		initiator *stubInitiator
		ingestor  *stubIngestor
		statuses  *stubStatuses
		router    *chi.Mux
	)

	do := func(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var decoded map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &decoded)).To(Succeed())
		return rec, decoded
	}

	BeforeEach(func() {
		initiator = &stubInitiator{}
		ingestor = &stubIngestor{}
		statuses = &stubStatuses{}
		handler := payment.NewHandler(transport.NewBaseHandler(testLogger()), initiator, ingestor, statuses, 1024)

		router = chi.NewRouter()
		router.Post("/api/v1/payments/charge", handler.Charge)
		router.Post("/api/v1/payments/postback", handler.Postback)
		router.Get("/api/v1/orders/{orderID}/status", handler.Status)
	})

	Describe("Charge", func() {
		It("answers 200 with the order id on acceptance", func() {
			// Given
			initiator.result = &payment.ChargeResult{OrderID: "ORD-1", Message: "submitted"}

			// When
			rec, body := do(http.MethodPost, "/api/v1/payments/charge", `{"orderId":"ORD-1","amount":"49.99","expMonth":7}`)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(Equal(map[string]interface{}{"success": true, "orderId": "ORD-1", "message": "submitted"}))
			Expect(initiator.got.Amount.String()).To(Equal("49.99"))
		})

		It("accepts a numeric amount", func() {
			initiator.result = &payment.ChargeResult{OrderID: "ORD-1"}

			rec, _ := do(http.MethodPost, "/api/v1/payments/charge", `{"orderId":"ORD-1","amount":49.99}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(initiator.got.Amount.String()).To(Equal("49.99"))
		})

		It("answers 500 with the error code on any failure", func() {
			// Given
			initiator.err = internal.NewUpstreamError("payment gateway is unavailable", internal.ErrCodeGatewayUnavailable, nil)

			// When
			rec, body := do(http.MethodPost, "/api/v1/payments/charge", `{"orderId":"ORD-1"}`)

			// Then
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("success", false))
			Expect(body).To(HaveKeyWithValue("error", "GATEWAY_UNAVAILABLE"))
			Expect(body).To(HaveKeyWithValue("message", "payment gateway is unavailable"))
		})

		It("answers 500 with a validation code for a malformed body", func() {
			rec, body := do(http.MethodPost, "/api/v1/payments/charge", `{not json`)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("error", "VALIDATION_FAILED"))
			Expect(initiator.got).To(BeNil())
		})
	})

	Describe("Postback", func() {
		It("passes the raw body through and acknowledges", func() {
			// Given
			ingestor.ack = &payment.Acknowledgement{
				Status: order.StatusPaid, Message: "APPROVED", TransactionID: "T1", AuthCode: "A55", OrderID: "ORD-1",
			}

			// When
			rec, body := do(http.MethodPost, "/api/v1/payments/postback", "FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1")

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(string(ingestor.body)).To(Equal("FullResponse=YAPPROVED;XactID=T1;Postback.OrderID=ORD-1"))
			Expect(body).To(Equal(map[string]interface{}{
				"success":       true,
				"status":        "paid",
				"message":       "APPROVED",
				"transactionId": "T1",
				"authCode":      "A55",
				"orderId":       "ORD-1",
			}))
		})

		It("answers 500 with the code when the postback is rejected", func() {
			ingestor.err = internal.ErrPostbackUnauthorized

			rec, body := do(http.MethodPost, "/api/v1/payments/postback", "Postback.RestrictKey=bad")

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("success", false))
			Expect(body).To(HaveKeyWithValue("error", "POSTBACK_UNAUTHORIZED"))
		})

		It("refuses bodies over the size cap", func() {
			rec, body := do(http.MethodPost, "/api/v1/payments/postback", strings.Repeat("a=b;", 400))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("error", "POSTBACK_UNRECOGNIZED_FORMAT"))
			Expect(ingestor.body).To(BeNil())
		})
	})

	Describe("Status", func() {
		It("returns the status and processor response", func() {
			// Given
			statuses.view = &payment.StatusView{
				OrderID:           "ORD-1",
				Status:            order.StatusPaid,
				ProcessorResponse: []byte(`{"format":"json"}`),
			}

			// When
			rec, body := do(http.MethodGet, "/api/v1/orders/ORD-1/status?wait=3s", "")

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("success", true))
			Expect(body).To(HaveKeyWithValue("status", "paid"))
			Expect(body).To(HaveKeyWithValue("orderId", "ORD-1"))
			Expect(body["processorResponse"]).To(HaveKeyWithValue("format", "json"))
			Expect(statuses.wait).To(Equal(3 * time.Second))
		})

		It("answers 404 for an unknown order", func() {
			statuses.err = internal.ErrOrderNotFound

			rec, body := do(http.MethodGet, "/api/v1/orders/ORD-404/status", "")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(body).To(Equal(map[string]interface{}{"success": false, "message": "order not found", "orderId": "ORD-404"}))
		})

		It("answers 500 for a failed lookup", func() {
			statuses.err = internal.NewPersistenceError("failed to load order", nil)

			rec, body := do(http.MethodGet, "/api/v1/orders/ORD-1/status", "")

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("error", "ORDER_PERSISTENCE_FAILED"))
		})

		It("accepts whole seconds for wait", func() {
			statuses.view = &payment.StatusView{OrderID: "ORD-1", Status: order.StatusPending}

			rec, body := do(http.MethodGet, "/api/v1/orders/ORD-1/status?wait=5", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("processorResponse", BeNil()))
			Expect(statuses.wait).To(Equal(5 * time.Second))
		})
	})
})
