package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type ClaimRequestRepo interface {
	Create(ctx context.Context, tx *gorm.DB, requests []*types.ClaimRequest) ([]*types.ClaimRequest, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ClaimRequest, error)
	GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) ([]*types.ClaimRequest, error)
	// GetLatestByEmailTenants returns claim requests for the email under any
	// of the tenant aliases, most recent first.
	GetLatestByEmailTenants(ctx context.Context, tx *gorm.DB, email string, tenantAliases []string) ([]*types.ClaimRequest, error)
	ListByTenants(ctx context.Context, tx *gorm.DB, tenantAliases []string, limit int) ([]*types.ClaimRequest, error)
	ListAll(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ClaimRequest, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
}

type claimRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRequestRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRequestRepo {
	repoLog := baseLog.With("repo", "ClaimRequestRepo")
	return &claimRequestRepo{db: db, log: repoLog}
}

func (cr *claimRequestRepo) Create(ctx context.Context, tx *gorm.DB, requests []*types.ClaimRequest) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if len(requests) == 0 {
		return []*types.ClaimRequest{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (cr *claimRequestRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.ClaimRequest
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *claimRequestRepo) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.ClaimRequest
	if orderID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *claimRequestRepo) GetLatestByEmailTenants(ctx context.Context, tx *gorm.DB, email string, tenantAliases []string) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.ClaimRequest
	if email == "" || len(tenantAliases) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("email = ? AND tenant IN ?", email, tenantAliases).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *claimRequestRepo) ListByTenants(ctx context.Context, tx *gorm.DB, tenantAliases []string, limit int) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.ClaimRequest
	if len(tenantAliases) == 0 {
		return results, nil
	}

	q := transaction.WithContext(ctx).
		Where("tenant IN ?", tenantAliases).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *claimRequestRepo) ListAll(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ClaimRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.ClaimRequest
	q := transaction.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *claimRequestRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	if len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.ClaimRequest{}).
		Where("id = ?", id).
		Updates(fields).Error
}
