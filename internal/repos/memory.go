package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type MemoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, memories []*types.Memory) ([]*types.Memory, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Memory, error)
	GetByOwnerUID(ctx context.Context, tx *gorm.DB, ownerUID uuid.UUID) ([]*types.Memory, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, baseLog *logger.Logger) MemoryRepo {
	repoLog := baseLog.With("repo", "MemoryRepo")
	return &memoryRepo{db: db, log: repoLog}
}

func (mr *memoryRepo) Create(ctx context.Context, tx *gorm.DB, memories []*types.Memory) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	if len(memories) == 0 {
		return []*types.Memory{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&memories).Error; err != nil {
		return nil, err
	}
	return memories, nil
}

func (mr *memoryRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.Memory
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

func (mr *memoryRepo) GetByOwnerUID(ctx context.Context, tx *gorm.DB, ownerUID uuid.UUID) ([]*types.Memory, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.Memory
	if ownerUID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("owner_uid = ?", ownerUID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *memoryRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	if len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Memory{}).
		Where("id = ?", id).
		Updates(fields).Error
}
