package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MemoryStatusDraft     = "draft"
	MemoryStatusPublished = "published"
)

// Memory is the customer-owned editable content container. PublicPageID is
// nil only during the provisioning window between page creation and the
// link-back write.
type Memory struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUID     uuid.UUID      `gorm:"type:uuid;index;not null;column:owner_uid" json:"owner_uid"`
	Tenant       string         `gorm:"index;not null;column:tenant" json:"tenant"`
	Title        string         `gorm:"not null;column:title" json:"title"`
	Description  string         `gorm:"column:description" json:"description"`
	Status       string         `gorm:"index;not null;column:status" json:"status"`
	PublicPageID *uuid.UUID     `gorm:"type:uuid;column:public_page_id" json:"public_page_id,omitempty"`
	Blocks       datatypes.JSON `gorm:"column:blocks" json:"blocks"`
	Design       datatypes.JSON `gorm:"column:design" json:"design"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Memory) TableName() string {
	return "memory"
}

// MemoryBlock is one ordered content unit inside Memory.Blocks.
type MemoryBlock struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	MediaKey string `json:"media_key,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}
