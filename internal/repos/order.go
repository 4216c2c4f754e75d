package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type OrderRepo interface {
	Create(ctx context.Context, tx *gorm.DB, orders []*types.Order) ([]*types.Order, error)
	GetByOrderIDs(ctx context.Context, tx *gorm.DB, orderIDs []string) ([]*types.Order, error)
	GetBySecretKey(ctx context.Context, tx *gorm.DB, secretKey string) (*types.Order, error)
	UpdateFieldsByOrderID(ctx context.Context, tx *gorm.DB, orderID string, fields map[string]any) error
}

type orderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	repoLog := baseLog.With("repo", "OrderRepo")
	return &orderRepo{db: db, log: repoLog}
}

func (or *orderRepo) Create(ctx context.Context, tx *gorm.DB, orders []*types.Order) ([]*types.Order, error) {
	transaction := tx
	if transaction == nil {
		transaction = or.db
	}

	if len(orders) == 0 {
		return []*types.Order{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (or *orderRepo) GetByOrderIDs(ctx context.Context, tx *gorm.DB, orderIDs []string) ([]*types.Order, error) {
	transaction := tx
	if transaction == nil {
		transaction = or.db
	}

	var results []*types.Order
	if len(orderIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (or *orderRepo) GetBySecretKey(ctx context.Context, tx *gorm.DB, secretKey string) (*types.Order, error) {
	transaction := tx
	if transaction == nil {
		transaction = or.db
	}

	if secretKey == "" {
		return nil, nil
	}

	var results []*types.Order
	if err := transaction.WithContext(ctx).
		Where("secret_key = ?", secretKey).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (or *orderRepo) UpdateFieldsByOrderID(ctx context.Context, tx *gorm.DB, orderID string, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = or.db
	}
	if orderID == "" || len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Updates(fields).Error
}
