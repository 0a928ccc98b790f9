package postgres

import (
	"context"
	"errors"

	"github.com/carnimore/checkout/internal"
	orderDatamodel "github.com/carnimore/checkout/internal/core/datamodel/order"
	"github.com/carnimore/checkout/internal/order"
	"gorm.io/gorm"
)

// OrderRepository implements order.RepositoryAPI using GORM
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository expects a *gorm.DB opened with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func NewOrderRepository(db *gorm.DB) order.RepositoryAPI {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.StatusPending
	}

	err := r.db.WithContext(ctx).Create(o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return internal.ErrOrderAlreadyExists.WithCause(err)
		}
		return internal.NewPersistenceError("failed to insert order", err)
	}
	return nil
}

// UpdateByOrderID applies a reconciliation as one UPDATE ... WHERE order_id = ?.
// No read precedes the write; a missing row shows up as zero rows affected.
func (r *OrderRepository) UpdateByOrderID(ctx context.Context, orderID string, rec order.Reconciliation) error {
	updates := map[string]interface{}{
		"payment_status":             rec.PaymentStatus,
		"payment_processor_id":       rec.PaymentProcessorID,
		"response_message":           rec.ResponseMessage,
		"payment_processor_response": rec.PaymentProcessorResponse,
	}

	result := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return internal.NewPersistenceError("failed to reconcile order", result.Error)
	}
	if result.RowsAffected == 0 {
		return internal.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrOrderNotFound
		}
		return nil, internal.NewPersistenceError("failed to load order", err)
	}
	return &o, nil
}

// ListByStatus returns newest orders first; an empty status lists every order.
func (r *OrderRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*order.Order, error) {
	offset, limit = order.ClampPage(offset, limit)

	query := r.db.WithContext(ctx).Model(&order.Order{})
	if status != "" {
		query = query.Where("payment_status = ?", status)
	}

	var orders []*order.Order
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, internal.NewPersistenceError("failed to list orders", err)
	}
	return orders, nil
}

func (r *OrderRepository) StatusCounts(ctx context.Context) ([]orderDatamodel.StatusCount, error) {
	var counts []orderDatamodel.StatusCount
	err := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Select("payment_status, COUNT(*) AS count").
		Group("payment_status").
		Order("payment_status").
		Scan(&counts).Error
	if err != nil {
		return nil, internal.NewPersistenceError("failed to count orders by status", err)
	}
	return counts, nil
}
