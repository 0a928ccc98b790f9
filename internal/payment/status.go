package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/pkg/logger"
)

// StatusWaiter blocks until the order's status channel fires or timeout
// passes. ready is called once the subscription is live, so a postback that
// lands between the first read and the subscribe is not missed.
type StatusWaiter interface {
	WaitForStatus(ctx context.Context, orderID string, timeout time.Duration, ready func(context.Context) (bool, error)) error
}

type StatusView struct {
	OrderID           string
	Status            string
	ProcessorResponse []byte
}

// StatusPublisher serves the polling side. Reads never change the order.
type StatusPublisher struct {
	repo    order.RepositoryAPI
	waiter  StatusWaiter
	maxWait time.Duration
	logger  *slog.Logger
}

// NewStatusPublisher accepts a nil waiter, in which case wait requests are
// answered immediately.
func NewStatusPublisher(repo order.RepositoryAPI, waiter StatusWaiter, maxWait time.Duration, logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{
		repo:    repo,
		waiter:  waiter,
		maxWait: maxWait,
		logger:  logger,
	}
}

func (p *StatusPublisher) Status(ctx context.Context, orderID string, wait time.Duration) (*StatusView, error) {
	current, err := p.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if wait <= 0 || p.waiter == nil || current.IsTerminal() {
		return view(current), nil
	}
	if p.maxWait > 0 && wait > p.maxWait {
		wait = p.maxWait
	}

	log := logger.FromOr(ctx, p.logger).With("order_id", orderID)
	err = p.waiter.WaitForStatus(ctx, orderID, wait, func(ctx context.Context) (bool, error) {
		latest, err := p.repo.GetByOrderID(ctx, orderID)
		if err != nil {
			return false, err
		}
		current = latest
		return latest.IsTerminal(), nil
	})
	switch {
	case err == nil:
	case stderrors.Is(err, context.DeadlineExceeded):
		log.Debug("status wait timed out", "wait", wait)
	default:
		// the row we already have is still a valid answer
		log.Warn("status wait failed", "error", err)
	}

	latest, err := p.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if ctx.Err() != nil {
			return view(current), nil
		}
		return nil, err
	}
	return view(latest), nil
}

func view(o *order.Order) *StatusView {
	return &StatusView{
		OrderID:           o.OrderID,
		Status:            o.PaymentStatus,
		ProcessorResponse: o.PaymentProcessorResponse,
	}
}
