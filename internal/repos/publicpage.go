package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type PublicPageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pages []*types.PublicPage) ([]*types.PublicPage, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.PublicPage, error)
	GetByMemoryID(ctx context.Context, tx *gorm.DB, memoryID uuid.UUID) (*types.PublicPage, error)
}

type publicPageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPublicPageRepo(db *gorm.DB, baseLog *logger.Logger) PublicPageRepo {
	repoLog := baseLog.With("repo", "PublicPageRepo")
	return &publicPageRepo{db: db, log: repoLog}
}

func (pr *publicPageRepo) Create(ctx context.Context, tx *gorm.DB, pages []*types.PublicPage) ([]*types.PublicPage, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	if len(pages) == 0 {
		return []*types.PublicPage{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (pr *publicPageRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.PublicPage, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.PublicPage
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

func (pr *publicPageRepo) GetByMemoryID(ctx context.Context, tx *gorm.DB, memoryID uuid.UUID) (*types.PublicPage, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	if memoryID == uuid.Nil {
		return nil, nil
	}

	var results []*types.PublicPage
	if err := transaction.WithContext(ctx).
		Where("memory_id = ?", memoryID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
