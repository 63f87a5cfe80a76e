package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item and ItemGroup belong to the inventory service; the engine reads them
// once per run to refresh the price/weight snapshot on candidate lines.

type Item struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TenantId       string          `gorm:"index;not null" json:"tenant_id" binding:"required"`
	ItemGroupId    int             `gorm:"index" json:"item_group_id"`
	Name           string          `gorm:"size:100;not null" json:"name" binding:"required"`
	LegacyCode     string          `gorm:"size:30" json:"legacy_code"`
	WholesalePrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wholesale_price"`
	RetailPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retail_price"`
	// UnitWeight is stored in grams.
	UnitWeight decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_weight"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ItemGroup struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
