package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

// WeekdaySetting is the per-weekday sub-object on a standing order header:
// how many pieces go out that weekday and whether delivery is charged.
type WeekdaySetting struct {
	Quantity            int   `gorm:"default:0" json:"quantity"`
	DeliveryChargesType *bool `gorm:"default:false" json:"delivery_charges_type"`
}

// WeekdayQuantity is the per-weekday sub-object on a standing order line.
type WeekdayQuantity struct {
	Quantity int `gorm:"default:0" json:"quantity"`
}

// StandingOrder is a customer's recurring order template. Authored by the
// customer-facing order setup; read-only to the materialization engine.
type StandingOrder struct {
	ID                int            `gorm:"primary_key" json:"id"`
	TenantId          string         `gorm:"index;not null" json:"tenant_id" binding:"required"`
	CustomerId        int            `gorm:"index;not null" json:"customer_id" binding:"required"`
	CustomerAddressId int            `gorm:"index;not null" json:"customer_address_id" binding:"required"`
	DeliveryType      DeliveryType   `gorm:"type:enum('Route','Pickup');default:'Route'" json:"delivery_type"`
	TotalPieces       int            `gorm:"default:0" json:"total_pieces"`
	Mon               WeekdaySetting `gorm:"embedded;embeddedPrefix:mon_" json:"mon"`
	Tue               WeekdaySetting `gorm:"embedded;embeddedPrefix:tue_" json:"tue"`
	Wed               WeekdaySetting `gorm:"embedded;embeddedPrefix:wed_" json:"wed"`
	Thu               WeekdaySetting `gorm:"embedded;embeddedPrefix:thu_" json:"thu"`
	Fri               WeekdaySetting `gorm:"embedded;embeddedPrefix:fri_" json:"fri"`
	Sat               WeekdaySetting `gorm:"embedded;embeddedPrefix:sat_" json:"sat"`
	Sun               WeekdaySetting `gorm:"embedded;embeddedPrefix:sun_" json:"sun"`

	Items []*StandingOrderItem `gorm:"foreignKey:StandingOrderId" json:"items"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StandingOrderItem is one row per (standing order, item). The item
// name/price/weight columns are denormalized snapshots; the candidate query
// refreshes them from the item table at read time.
type StandingOrderItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"index;not null" json:"tenant_id" binding:"required"`
	StandingOrderId int             `gorm:"index;not null" json:"standing_order_id" binding:"required"`
	ItemId          int             `gorm:"index;not null" json:"item_id" binding:"required"`
	ItemGroupId     int             `gorm:"index" json:"item_group_id"`
	DeliveryCharges decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"delivery_charges"`

	Mon WeekdayQuantity `gorm:"embedded;embeddedPrefix:mon_" json:"mon"`
	Tue WeekdayQuantity `gorm:"embedded;embeddedPrefix:tue_" json:"tue"`
	Wed WeekdayQuantity `gorm:"embedded;embeddedPrefix:wed_" json:"wed"`
	Thu WeekdayQuantity `gorm:"embedded;embeddedPrefix:thu_" json:"thu"`
	Fri WeekdayQuantity `gorm:"embedded;embeddedPrefix:fri_" json:"fri"`
	Sat WeekdayQuantity `gorm:"embedded;embeddedPrefix:sat_" json:"sat"`
	Sun WeekdayQuantity `gorm:"embedded;embeddedPrefix:sun_" json:"sun"`

	ItemName       string          `gorm:"size:100" json:"item_name"`
	LegacyCode     string          `gorm:"size:30" json:"legacy_code"`
	WholesalePrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wholesale_price"`
	RetailPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retail_price"`
	// UnitWeight is stored in grams.
	UnitWeight decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_weight"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *StandingOrder) WeekdaySettingFor(weekdayShort string) (WeekdaySetting, bool) {
	switch weekdayShort {
	case WeekdayKeyMon:
		return s.Mon, true
	case WeekdayKeyTue:
		return s.Tue, true
	case WeekdayKeyWed:
		return s.Wed, true
	case WeekdayKeyThu:
		return s.Thu, true
	case WeekdayKeyFri:
		return s.Fri, true
	case WeekdayKeySat:
		return s.Sat, true
	case WeekdayKeySun:
		return s.Sun, true
	}
	return WeekdaySetting{}, false
}

func (i *StandingOrderItem) QuantityFor(weekdayShort string) int {
	switch weekdayShort {
	case WeekdayKeyMon:
		return i.Mon.Quantity
	case WeekdayKeyTue:
		return i.Tue.Quantity
	case WeekdayKeyWed:
		return i.Wed.Quantity
	case WeekdayKeyThu:
		return i.Thu.Quantity
	case WeekdayKeyFri:
		return i.Fri.Quantity
	case WeekdayKeySat:
		return i.Sat.Quantity
	case WeekdayKeySun:
		return i.Sun.Quantity
	}
	return 0
}

// FindMaterializationCandidates returns standing orders with a positive
// quantity for weekdayShort, each carrying only its lines with a positive
// quantity for the same weekday. Line snapshots are refreshed from the item
// table at read time. Spans all tenants; callers must run with tenant scope
// bypassed and re-scope per order.
func FindMaterializationCandidates(ctx context.Context, weekdayShort string) ([]*StandingOrder, error) {
	if !IsValidWeekdayKey(weekdayShort) {
		return nil, &utils.ValidationError{Reason: fmt.Sprintf("unknown weekday key %q", weekdayShort)}
	}
	qtyColumn := weekdayShort + "_quantity"

	db := config.GetDB()
	var orders []*StandingOrder
	err := db.WithContext(ctx).
		Where(qtyColumn+" > ?", 0).
		Preload("Items", qtyColumn+" > ?", 0).
		Order("tenant_id, id").
		Find(&orders).Error
	if err != nil {
		return nil, &utils.PersistenceError{Op: "find standing orders", Err: err}
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := refreshItemSnapshots(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// refreshItemSnapshots overwrites each line's denormalized name, weight and
// price columns with the item table's current values so the materialized
// cart reflects pricing as of this run, not as of order authoring. Lines
// whose item row has gone missing keep their stored snapshot.
func refreshItemSnapshots(ctx context.Context, orders []*StandingOrder) error {
	var itemIds []int
	for _, order := range orders {
		for _, line := range order.Items {
			itemIds = append(itemIds, line.ItemId)
		}
	}
	itemIds = utils.UniqueSlice(itemIds)
	if len(itemIds) == 0 {
		return nil
	}

	db := config.GetDB()
	var items []*Item
	if err := db.WithContext(ctx).Where("id IN ?", itemIds).Find(&items).Error; err != nil {
		return &utils.PersistenceError{Op: "load item snapshots", Err: err}
	}
	byId := make(map[int]*Item, len(items))
	for _, item := range items {
		byId[item.ID] = item
	}

	for _, order := range orders {
		for _, line := range order.Items {
			item, ok := byId[line.ItemId]
			if !ok {
				continue
			}
			line.ItemName = item.Name
			line.LegacyCode = item.LegacyCode
			line.WholesalePrice = item.WholesalePrice
			line.RetailPrice = item.RetailPrice
			line.UnitWeight = item.UnitWeight
		}
	}
	return nil
}
