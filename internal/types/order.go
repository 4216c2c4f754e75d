package types

import (
	"time"

	"github.com/google/uuid"
)

// Order fulfillment statuses.
const (
	OrderStatusDraft     = "draft"
	OrderStatusPaid      = "paid"
	OrderStatusNFCReady  = "nfcReady"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// Payment statuses. Completed is reached exactly once per successful payment
// event; webhook replays must not re-transition it.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Order is the commercial record behind a ClaimRequest, joined by the
// provider-assigned OrderID and email. SecretKey is the legacy 16-char
// credential minted on payment success, valid for 30 days.
type Order struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID            string     `gorm:"uniqueIndex;not null;column:order_id" json:"order_id"`
	Email              string     `gorm:"index;not null;column:email" json:"email"`
	Tenant             string     `gorm:"index;column:tenant" json:"tenant"`
	LpID               string     `gorm:"column:lp_id" json:"lp_id"`
	Product            string     `gorm:"column:product" json:"product"`
	ProductType        string     `gorm:"column:product_type" json:"product_type"`
	SecretKey          *string    `gorm:"uniqueIndex;column:secret_key" json:"-"`
	SecretKeyExpiresAt *time.Time `gorm:"column:secret_key_expires_at" json:"secret_key_expires_at,omitempty"`
	PaymentStatus      string     `gorm:"index;not null;column:payment_status" json:"payment_status"`
	OrderStatus        string     `gorm:"column:order_status" json:"order_status"`
	Status             string     `gorm:"index;not null;column:status" json:"status"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string {
	return "order"
}
