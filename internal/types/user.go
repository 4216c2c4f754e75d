package types

import (
	"time"

	"github.com/google/uuid"
)

// User is a claimant account. The same email may exist under different
// tenants as distinct accounts, so uniqueness is per (email, tenant).
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex:ux_user_email_tenant;not null;column:email" json:"email"`
	Tenant    string    `gorm:"uniqueIndex:ux_user_email_tenant;not null;column:tenant" json:"tenant"`
	Password  string    `gorm:"not null;column:password" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
