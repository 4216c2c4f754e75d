package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type TenantRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Tenant, error)
	GetByLegacyID(ctx context.Context, tx *gorm.DB, legacyID string) (*types.Tenant, error)
	GetByCompanyID(ctx context.Context, tx *gorm.DB, companyID string) (*types.Tenant, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Tenant, error)
}

type tenantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTenantRepo(db *gorm.DB, baseLog *logger.Logger) TenantRepo {
	repoLog := baseLog.With("repo", "TenantRepo")
	return &tenantRepo{db: db, log: repoLog}
}

func (tr *tenantRepo) Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if len(tenants) == 0 {
		return []*types.Tenant{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (tr *tenantRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Tenant, error) {
	return tr.getOne(ctx, tx, "id = ?", id)
}

func (tr *tenantRepo) GetByLegacyID(ctx context.Context, tx *gorm.DB, legacyID string) (*types.Tenant, error) {
	return tr.getOne(ctx, tx, "legacy_id = ?", legacyID)
}

func (tr *tenantRepo) GetByCompanyID(ctx context.Context, tx *gorm.DB, companyID string) (*types.Tenant, error) {
	return tr.getOne(ctx, tx, "company_id = ?", companyID)
}

func (tr *tenantRepo) getOne(ctx context.Context, tx *gorm.DB, cond string, val string) (*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if val == "" {
		return nil, nil
	}

	var results []*types.Tenant
	if err := transaction.WithContext(ctx).
		Where(cond, val).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (tr *tenantRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Tenant, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.Tenant
	if err := transaction.WithContext(ctx).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
