package order

import (
	"context"

	orderDatamodel "github.com/carnimore/checkout/internal/core/datamodel/order"
	"gorm.io/datatypes"
)

type Order = orderDatamodel.Order

const (
	StatusPending = orderDatamodel.StatusPending
	StatusPaid    = orderDatamodel.StatusPaid
	StatusFailed  = orderDatamodel.StatusFailed

	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Reconciliation is the full set of columns a postback writes. Every field
// is an absolute value, so applying the same Reconciliation twice leaves the
// row as it was after the first write.
type Reconciliation struct {
	PaymentStatus            string
	PaymentProcessorID       string
	ResponseMessage          string
	PaymentProcessorResponse datatypes.JSON
}

// RepositoryAPI is the order store. Implementations return
// internal.ErrOrderNotFound and internal.ErrOrderAlreadyExists for the
// correlation failures callers branch on.
type RepositoryAPI interface {
	Insert(ctx context.Context, o *Order) error
	UpdateByOrderID(ctx context.Context, orderID string, rec Reconciliation) error
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	ListByStatus(ctx context.Context, status string, offset, limit int) ([]*Order, error)
	StatusCounts(ctx context.Context) ([]orderDatamodel.StatusCount, error)
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// ClampPage normalises admin pagination input.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
