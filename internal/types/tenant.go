package types

import "time"

// Tenant is a store/brand on the platform. Legacy data addresses one tenant
// by up to four strings: the store-assigned document id (ID), the human
// `id` field (LegacyID), the CompanyID, and the DisplayName. Queries against
// tenant-scoped records must use the full alias set.
type Tenant struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	LegacyID    string    `gorm:"index;column:legacy_id" json:"legacy_id"`
	CompanyID   string    `gorm:"index;column:company_id" json:"company_id"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenant"
}

// Aliases returns every identifier this tenant is known by, deduplicated,
// empty strings dropped.
func (t *Tenant) Aliases() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, a := range []string{t.ID, t.LegacyID, t.CompanyID} {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
