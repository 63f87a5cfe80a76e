package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"gorm.io/gorm"
)

// Customer, CustomerAddress, CustomerWeekRoute and Route are read-only
// collaborators here. Record management for them lives in the back-office
// service; the engine only resolves delivery routing from them.

type Customer struct {
	ID           int       `gorm:"primary_key" json:"id"`
	TenantId     string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email        string    `gorm:"size:100" json:"email"`
	Phone        string    `gorm:"size:20" json:"phone"`
	PaymentTerms string    `gorm:"size:50" json:"payment_terms"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type CustomerAddress struct {
	ID           int       `gorm:"primary_key" json:"id"`
	TenantId     string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	CustomerId   int       `gorm:"index;not null" json:"customer_id" binding:"required"`
	AddressLine1 string    `gorm:"size:100" json:"address_line_1"`
	AddressLine2 string    `gorm:"size:100" json:"address_line_2"`
	AddressLine3 string    `gorm:"size:100" json:"address_line_3"`
	City         string    `gorm:"size:50" json:"city"`
	StateName    string    `gorm:"size:50" json:"state_name"`
	CountryName  string    `gorm:"size:50" json:"country_name"`
	Postcode     string    `gorm:"size:20" json:"postcode"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerWeekRoute maps an address to a delivery route per weekday.
// WeekdayName holds the full weekday name ("Monday").
type CustomerWeekRoute struct {
	ID                int       `gorm:"primary_key" json:"id"`
	TenantId          string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	CustomerAddressId int       `gorm:"index;not null" json:"customer_address_id" binding:"required"`
	WeekdayName       string    `gorm:"size:10;not null" json:"weekday_name" binding:"required"`
	RouteId           int       `gorm:"not null" json:"route_id" binding:"required"`
	IsActive          *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Route struct {
	ID        int       `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"index;not null" json:"tenant_id" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeliveryRouteInfo is the resolved routing snapshot stamped onto a new cart.
// RouteId 0 / empty RouteName means no active weekday assignment exists;
// that is informational only and never fails a materialization.
type DeliveryRouteInfo struct {
	CustomerName    string `json:"customer_name"`
	PaymentTerms    string `json:"payment_terms"`
	DeliveryAddress string `json:"delivery_address"`
	RouteId         int    `json:"route_id"`
	RouteName       string `json:"route_name"`
}

// FormatDeliveryAddress concatenates the non-empty address components,
// comma separated, terminated with a period.
func FormatDeliveryAddress(addr *CustomerAddress) string {
	joined := utils.JoinNonEmpty(", ",
		addr.AddressLine1,
		addr.AddressLine2,
		addr.AddressLine3,
		addr.City,
		addr.StateName,
		addr.CountryName,
		addr.Postcode,
	)
	if joined == "" {
		return ""
	}
	return joined + "."
}

const weekRouteCacheTTL = 10 * time.Minute

func weekRouteCacheKey(tenantId string, addressId int, weekdayLong string) string {
	return fmt.Sprintf("weekroute:%s:%d:%s", tenantId, addressId, weekdayLong)
}

// InvalidateWeekRouteCache drops the cached route for an address/weekday so a
// reassignment in the back office takes effect before the cache TTL lapses.
func InvalidateWeekRouteCache(tenantId string, addressId int, weekdayLong string) error {
	return config.DeleteRedisKeys(weekRouteCacheKey(tenantId, addressId, weekdayLong))
}

// ResolveDeliveryRoute looks up the customer header, the address row and the
// active weekday route assignment for the address. A missing assignment
// degrades to empty route fields; a missing customer or address is a real
// linkage failure.
func ResolveDeliveryRoute(ctx context.Context, tenantId string, customerId int, addressId int, weekdayLong string) (*DeliveryRouteInfo, error) {
	db := config.GetDB()

	customer, err := utils.FetchModel[Customer](ctx, tenantId, customerId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.ValidationError{Reason: fmt.Sprintf("customer %d has no header row", customerId)}
		}
		return nil, &utils.PersistenceError{Op: "load customer", Err: err}
	}

	var address CustomerAddress
	if err := db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantId, customerId).
		First(&address, addressId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.ValidationError{Reason: fmt.Sprintf("address %d does not belong to customer %d", addressId, customerId)}
		}
		return nil, &utils.PersistenceError{Op: "load customer address", Err: err}
	}

	info := &DeliveryRouteInfo{
		CustomerName:    customer.Name,
		PaymentTerms:    customer.PaymentTerms,
		DeliveryAddress: FormatDeliveryAddress(&address),
	}

	route, err := activeWeekRoute(ctx, tenantId, addressId, weekdayLong)
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			// Non-fatal: cart is created with null route fields.
			return info, nil
		}
		return nil, err
	}

	info.RouteId = route.ID
	info.RouteName = route.Name
	return info, nil
}

// activeWeekRoute resolves the active weekday assignment for the address,
// caching hits since assignments change rarely.
func activeWeekRoute(ctx context.Context, tenantId string, addressId int, weekdayLong string) (*Route, error) {
	cacheKey := weekRouteCacheKey(tenantId, addressId, weekdayLong)
	var cached Route
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found && cached.ID > 0 {
		return &cached, nil
	}

	db := config.GetDB()
	var weekRoute CustomerWeekRoute
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND customer_address_id = ? AND weekday_name = ? AND is_active = ?",
			tenantId, addressId, weekdayLong, true).
		First(&weekRoute).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "week route assignment"}
		}
		return nil, &utils.PersistenceError{Op: "load week route", Err: err}
	}

	route, err := utils.FetchModel[Route](ctx, tenantId, weekRoute.RouteId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &utils.NotFoundError{Resource: "route"}
		}
		return nil, &utils.PersistenceError{Op: "load route", Err: err}
	}

	_ = config.SetRedisObject(cacheKey, route, weekRouteCacheTTL)
	return route, nil
}
