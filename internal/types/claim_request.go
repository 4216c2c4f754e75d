package types

import (
	"time"

	"github.com/google/uuid"
)

// ClaimRequest lifecycle statuses. Terminal states are claimed and expired.
const (
	ClaimStatusPending = "pending"
	ClaimStatusSent    = "sent"
	ClaimStatusClaimed = "claimed"
	ClaimStatusExpired = "expired"
)

// ClaimRequest sources.
const (
	ClaimSourceManualEntry = "manual_entry"
	ClaimSourceWebhook     = "payment_webhook"
)

// ClaimRequest tracks one purchase or lead through the claim lifecycle.
// The post-claim fields stay nil until provisioning completes; ClaimedByUID
// and PublicPageURL are written together, never one without the other.
type ClaimRequest struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email          string     `gorm:"index;not null;column:email" json:"email"`
	Tenant         string     `gorm:"index;not null;column:tenant" json:"tenant"`
	LpID           string     `gorm:"column:lp_id" json:"lp_id"`
	Product        string     `gorm:"column:product" json:"product"`
	ProductType    string     `gorm:"column:product_type" json:"product_type"`
	OrderID        string     `gorm:"index;column:order_id" json:"order_id"`
	Origin         string     `gorm:"column:origin" json:"origin"`
	IP             string     `gorm:"column:ip" json:"ip"`
	UA             string     `gorm:"column:ua" json:"ua"`
	RecaptchaScore float64    `gorm:"column:recaptcha_score" json:"recaptcha_score"`
	Source         string     `gorm:"index;not null;column:source" json:"source"`
	Status         string     `gorm:"index;not null;column:status" json:"status"`
	PublicPageID   *uuid.UUID `gorm:"type:uuid;column:public_page_id" json:"public_page_id,omitempty"`
	PublicPageURL  *string    `gorm:"column:public_page_url" json:"public_page_url,omitempty"`
	LoginURL       *string    `gorm:"column:login_url" json:"login_url,omitempty"`
	ClaimedByUID   *uuid.UUID `gorm:"type:uuid;column:claimed_by_uid" json:"claimed_by_uid,omitempty"`
	ClaimedAt      *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	SentAt         *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (ClaimRequest) TableName() string {
	return "claim_request"
}

func (cr *ClaimRequest) IsTerminal() bool {
	return cr.Status == ClaimStatusClaimed || cr.Status == ClaimStatusExpired
}
