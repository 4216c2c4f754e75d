package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PublishStatusPublished = "published"
)

// PublicPage is the published, publicly addressable artifact. Exactly one
// owning Memory exists per page, and Memory.PublicPageID points back at it.
type PublicPage struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Tenant         string         `gorm:"index;not null;column:tenant" json:"tenant"`
	OwnerUID       uuid.UUID      `gorm:"type:uuid;index;not null;column:owner_uid" json:"owner_uid"`
	MemoryID       uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null;column:memory_id" json:"memory_id"`
	Title          string         `gorm:"not null;column:title" json:"title"`
	About          string         `gorm:"column:about" json:"about"`
	Design         datatypes.JSON `gorm:"column:design" json:"design"`
	PublishStatus  string         `gorm:"index;not null;column:publish_status" json:"publish_status"`
	PublishVersion int            `gorm:"not null;column:publish_version" json:"publish_version"`
	PublishedAt    *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	AccessPublic   bool           `gorm:"not null;column:access_public" json:"access_public"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (PublicPage) TableName() string {
	return "public_page"
}
