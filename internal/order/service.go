package order

import (
	"context"
	"log/slog"

	errors "github.com/carnimore/checkout/internal"
)

// Service backs the read-only ops routes.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ListOrders(ctx context.Context, status string, offset, limit int) (*OrdersResponse, error) {
	if status != "" && !ValidStatus(status) {
		return nil, errors.NewValidationFieldError("status", "status must be pending, paid or failed", errors.ErrCodeValidationFailed)
	}
	offset, limit = ClampPage(offset, limit)

	orders, err := s.repo.ListByStatus(ctx, status, offset, limit)
	if err != nil {
		s.logger.Error("failed to list orders", "status", status, "error", err)
		return nil, err
	}

	summaries := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, ToSummary(o))
	}
	return &OrdersResponse{Orders: summaries, Offset: offset, Limit: limit}, nil
}

// Stats counts orders per status. Statuses with no orders report zero.
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		s.logger.Error("failed to count orders", "error", err)
		return nil, err
	}

	resp := &StatsResponse{Counts: map[string]int64{
		StatusPending: 0,
		StatusPaid:    0,
		StatusFailed:  0,
	}}
	for _, c := range counts {
		resp.Counts[c.PaymentStatus] = c.Count
		resp.Total += c.Count
	}
	return resp, nil
}
