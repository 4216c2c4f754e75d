package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type WebhookEventRepo interface {
	// InsertIfNew records the event and reports whether this delivery is the
	// first one. A conflicting (provider, event id) pair means a replay.
	InsertIfNew(ctx context.Context, tx *gorm.DB, event *types.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, eventID string, processingError string) error
	GetByEventID(ctx context.Context, tx *gorm.DB, eventID string) (*types.WebhookEvent, error)
}

type webhookEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebhookEventRepo(db *gorm.DB, baseLog *logger.Logger) WebhookEventRepo {
	repoLog := baseLog.With("repo", "WebhookEventRepo")
	return &webhookEventRepo{db: db, log: repoLog}
}

func (wr *webhookEventRepo) InsertIfNew(ctx context.Context, tx *gorm.DB, event *types.WebhookEvent) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = wr.db
	}

	if event == nil || event.EventID == "" {
		return false, nil
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (wr *webhookEventRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, eventID string, processingError string) error {
	transaction := tx
	if transaction == nil {
		transaction = wr.db
	}
	if eventID == "" {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

func (wr *webhookEventRepo) GetByEventID(ctx context.Context, tx *gorm.DB, eventID string) (*types.WebhookEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = wr.db
	}

	if eventID == "" {
		return nil, nil
	}

	var results []*types.WebhookEvent
	if err := transaction.WithContext(ctx).
		Where("event_id = ?", eventID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
