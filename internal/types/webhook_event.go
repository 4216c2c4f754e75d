package types

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores every inbound provider event with deduplication
// metadata. The unique (provider, event_id) index is the idempotency guard:
// a replayed delivery fails the insert, and only rows already processed
// without error stay no-ops. A retried delivery of a failed event runs
// again.
type WebhookEvent struct {
	EventID         string         `gorm:"primaryKey;column:event_id" json:"event_id"`
	Provider        string         `gorm:"uniqueIndex:ux_webhook_event_provider_event,priority:1;not null;column:provider" json:"provider"`
	ProviderEventID string         `gorm:"uniqueIndex:ux_webhook_event_provider_event,priority:2;not null;column:provider_event_id" json:"provider_event_id"`
	EventType       string         `gorm:"index;column:event_type" json:"event_type"`
	Payload         datatypes.JSON `gorm:"column:payload" json:"payload"`
	SignatureValid  bool           `gorm:"column:signature_valid" json:"signature_valid"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"column:processing_error" json:"processing_error"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_event"
}
