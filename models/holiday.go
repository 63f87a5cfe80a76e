package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
)

// Holiday is a tenant-scoped blackout window [StartDate, EndDate], inclusive
// on both ends. Read-only collaborator.
type Holiday struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	Name      string    `gorm:"size:100" json:"name"`
	StartDate time.Time `gorm:"type:date;not null" json:"start_date" binding:"required"`
	EndDate   time.Time `gorm:"type:date;not null" json:"end_date" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDeliveryBlocked reports whether any of the tenant's blackout windows
// contains deliveryDate. Evaluated per standing order's tenant; one blocked
// tenant never short-circuits the rest of the batch.
func IsDeliveryBlocked(ctx context.Context, tenantId string, deliveryDate time.Time) (bool, error) {
	db := config.GetDB()
	date := utils.TruncateToDate(deliveryDate)

	var count int64
	err := db.WithContext(ctx).Model(&Holiday{}).
		Where("tenant_id = ? AND start_date <= ? AND end_date >= ?", tenantId, date, date).
		Count(&count).Error
	if err != nil {
		return false, &utils.PersistenceError{Op: "count holidays", Err: err}
	}
	return count > 0, nil
}
