package payment_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
)

// fakeWaiter stands in for the Redis notifier. onReady runs after the
// readiness check, mimicking a postback landing while the caller waits.
type fakeWaiter struct {
	calls    int
	timeout  time.Duration
	onReady  func()
	readyErr error
	err      error
	ready    bool
}

func (f *fakeWaiter) WaitForStatus(ctx context.Context, orderID string, timeout time.Duration, ready func(context.Context) (bool, error)) error {
	f.calls++
	f.timeout = timeout
	f.ready, f.readyErr = ready(ctx)
	if f.ready {
		return nil
	}
	if f.onReady != nil {
		f.onReady()
	}
	return f.err
}

var _ = Describe("StatusPublisher", func() {
	var (
		repo   *mockOrderRepository
		waiter *fakeWaiter
		ctx    context.Context
	)

	BeforeEach(func() {
		repo = newMockOrderRepository(&callLog{})
		waiter = &fakeWaiter{}
		ctx = context.Background()
		Expect(repo.Insert(ctx, &order.Order{OrderID: "ORD-1", PaymentStatus: order.StatusPending})).To(Succeed())
	})

	It("returns the current status without waiting by default", func() {
		// Given
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		// When
		view, err := publisher.Status(ctx, "ORD-1", 0)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(view.Status).To(Equal(order.StatusPending))
		Expect(view.OrderID).To(Equal("ORD-1"))
		Expect(waiter.calls).To(BeZero())
	})

	It("returns order not found for an unknown id", func() {
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		_, err := publisher.Status(ctx, "ORD-404", 5*time.Second)

		Expect(err).To(MatchError(internal.ErrOrderNotFound))
		Expect(waiter.calls).To(BeZero())
	})

	It("passes lookup failures through unchanged", func() {
		repo.getErr = internal.NewPersistenceError("failed to load order", errors.New("timeout"))
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		_, err := publisher.Status(ctx, "ORD-1", 0)

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodePersistenceFailed))
	})

	It("returns the row written while it was waiting", func() {
		// Given
		waiter.onReady = func() {
			Expect(repo.UpdateByOrderID(ctx, "ORD-1", order.Reconciliation{
				PaymentStatus:            order.StatusPaid,
				PaymentProcessorID:       "T1",
				ResponseMessage:          "APPROVED",
				PaymentProcessorResponse: datatypes.JSON(`{"format":"delimited"}`),
			})).To(Succeed())
		}
		waiter.err = nil
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		// When
		view, err := publisher.Status(ctx, "ORD-1", 5*time.Second)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(waiter.calls).To(Equal(1))
		Expect(waiter.ready).To(BeFalse())
		Expect(view.Status).To(Equal(order.StatusPaid))
		Expect(view.ProcessorResponse).To(MatchJSON(`{"format":"delimited"}`))
	})

	It("caps the wait at the configured maximum", func() {
		waiter.err = context.DeadlineExceeded
		publisher := payment.NewStatusPublisher(repo, waiter, 2*time.Second, testLogger())

		view, err := publisher.Status(ctx, "ORD-1", time.Minute)

		Expect(err).ToNot(HaveOccurred())
		Expect(waiter.timeout).To(Equal(2 * time.Second))
		Expect(view.Status).To(Equal(order.StatusPending))
	})

	It("does not wait on an order that is already settled", func() {
		// Given
		Expect(repo.UpdateByOrderID(ctx, "ORD-1", order.Reconciliation{PaymentStatus: order.StatusFailed})).To(Succeed())
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		// When
		view, err := publisher.Status(ctx, "ORD-1", 5*time.Second)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(view.Status).To(Equal(order.StatusFailed))
		Expect(waiter.calls).To(BeZero())
	})

	It("still answers when the notifier is unavailable", func() {
		waiter.err = errors.New("redis: connection refused")
		publisher := payment.NewStatusPublisher(repo, waiter, 10*time.Second, testLogger())

		view, err := publisher.Status(ctx, "ORD-1", 5*time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(view.Status).To(Equal(order.StatusPending))
	})

	It("ignores wait requests when no notifier is configured", func() {
		publisher := payment.NewStatusPublisher(repo, nil, 10*time.Second, testLogger())

		view, err := publisher.Status(ctx, "ORD-1", 5*time.Second)

		Expect(err).ToNot(HaveOccurred())
		Expect(view.Status).To(Equal(order.StatusPending))
	})
})
