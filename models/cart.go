package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart is one materialized delivery instance for a customer/address/date.
// At most one cart exists per (tenant_id, customer_id, customer_address_id,
// delivery_date). Created by this engine or by manual order entry; header
// fields are never overwritten on re-run, only the aggregate columns move.
type Cart struct {
	ID                int    `gorm:"primary_key" json:"id"`
	TenantId          string `gorm:"uniqueIndex:idx_cart_key;not null" json:"tenant_id" binding:"required"`
	CustomerId        int    `gorm:"uniqueIndex:idx_cart_key;not null" json:"customer_id" binding:"required"`
	CustomerAddressId int    `gorm:"uniqueIndex:idx_cart_key;not null" json:"customer_address_id" binding:"required"`
	// DeliveryDate is a date, not a datetime.
	DeliveryDate time.Time `gorm:"type:date;uniqueIndex:idx_cart_key;not null" json:"delivery_date" binding:"required"`
	OrderDate    time.Time `gorm:"type:date;not null" json:"order_date"`

	DeliveryNumber  string       `gorm:"size:30;index" json:"delivery_number"`
	DeliveryType    DeliveryType `gorm:"type:enum('Route','Pickup');default:'Route'" json:"delivery_type"`
	RouteId         int          `gorm:"default:0" json:"route_id"`
	RouteName       string       `gorm:"size:100" json:"route_name"`
	CustomerName    string       `gorm:"size:100" json:"customer_name"`
	PaymentTerms    string       `gorm:"size:50" json:"payment_terms"`
	DeliveryAddress string       `gorm:"size:500" json:"delivery_address"`

	TotalPieces int             `gorm:"default:0" json:"total_pieces"`
	TotalCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	// TotalWeight is kept in kilograms; line weights arrive in grams.
	TotalWeight         decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"total_weight"`
	DeliveryCharges     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"delivery_charges"`
	DeliveryChargesType *bool           `gorm:"not null;default:false" json:"delivery_charges_type"`

	Items []*CartItem `gorm:"foreignKey:CartId" json:"items"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartItem is one materialized line. Cost is the line's own computed cost;
// CartTotalCost is a denormalized copy of the cart-level total stamped onto
// every row of the cart after each merge. It is a reporting convenience, not
// a correctness-bearing field, and is deliberately distinct from Cost.
type CartItem struct {
	ID         int    `gorm:"primary_key" json:"id"`
	TenantId   string `gorm:"uniqueIndex:idx_cart_item_dedup;not null" json:"tenant_id" binding:"required"`
	CartId     int    `gorm:"index;not null" json:"cart_id" binding:"required"`
	CustomerId int    `gorm:"uniqueIndex:idx_cart_item_dedup;not null" json:"customer_id" binding:"required"`
	ItemId     int    `gorm:"uniqueIndex:idx_cart_item_dedup;not null" json:"item_id" binding:"required"`
	// DeliveryDate is denormalized from the cart so the dedup check stays a
	// single-table query under either dedup scope.
	DeliveryDate time.Time `gorm:"type:date;uniqueIndex:idx_cart_item_dedup;not null" json:"delivery_date"`
	ItemGroupId  int       `gorm:"index" json:"item_group_id"`

	ItemName   string `gorm:"size:100" json:"item_name"`
	LegacyCode string `gorm:"size:30" json:"legacy_code"`
	Quantity   int    `gorm:"default:0" json:"quantity"`
	// UnitWeight is stored in grams.
	UnitWeight    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_weight"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Cost          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost"`
	CartTotalCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cart_total_cost"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartKey is the exact lookup tuple for the cart ledger. No date-range fuzzing.
type CartKey struct {
	TenantId          string
	CustomerId        int
	CustomerAddressId int
	DeliveryDate      time.Time
}

func (k CartKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%s", k.TenantId, k.CustomerId, k.CustomerAddressId, k.DeliveryDate.Format("2006-01-02"))
}

// CartSeed carries the header fields stamped onto a newly created cart.
// Ignored entirely when the cart already exists.
type CartSeed struct {
	OrderDate           time.Time
	DeliveryType        DeliveryType
	Route               *DeliveryRouteInfo
	DeliveryChargesType *bool
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BuildDeliveryNumber composes the human-readable delivery number: a clock
// fragment, the ISO delivery date with separators removed, and a trailing
// sub-second fragment. Uniqueness is probabilistic; NewDeliveryNumber adds
// the bounded collision check.
func BuildDeliveryNumber(now time.Time, deliveryDate time.Time) string {
	return now.Format("150405") + deliveryDate.Format("20060102") + fmt.Sprintf("%04d", now.Nanosecond()/100000)
}

const deliveryNumberMaxAttempts = 5

// NewDeliveryNumber returns a delivery number unused within the tenant.
// Bounded retry, then a higher-entropy fallback, so generation always
// terminates (the source system retried by unbounded recursion).
func NewDeliveryNumber(ctx context.Context, tx *gorm.DB, tenantId string, deliveryDate time.Time) (string, error) {
	for attempt := 0; attempt < deliveryNumberMaxAttempts; attempt++ {
		candidate := BuildDeliveryNumber(time.Now(), deliveryDate)
		var count int64
		err := tx.WithContext(ctx).Model(&Cart{}).
			Where("tenant_id = ? AND delivery_number = ?", tenantId, candidate).
			Count(&count).Error
		if err != nil {
			return "", &utils.PersistenceError{Op: "check delivery number", Err: err}
		}
		if count == 0 {
			return candidate, nil
		}
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return BuildDeliveryNumber(time.Now(), deliveryDate) + suffix, nil
}

// GetOrCreateCart fetches the cart for key or creates it with seed fields.
// Exactly one insert or zero inserts; an existing cart is returned unchanged
// so repeated runs never rewrite header fields. A concurrent insert losing
// the unique-index race is re-read instead of failed.
func GetOrCreateCart(ctx context.Context, tx *gorm.DB, key CartKey, seed CartSeed) (*Cart, bool, error) {
	date := utils.TruncateToDate(key.DeliveryDate)

	var existing Cart
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND customer_address_id = ? AND delivery_date = ?",
			key.TenantId, key.CustomerId, key.CustomerAddressId, date).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, &utils.PersistenceError{Op: "lookup cart", Err: err}
	}

	deliveryNumber, err := NewDeliveryNumber(ctx, tx, key.TenantId, date)
	if err != nil {
		return nil, false, err
	}

	cart := Cart{
		TenantId:            key.TenantId,
		CustomerId:          key.CustomerId,
		CustomerAddressId:   key.CustomerAddressId,
		DeliveryDate:        date,
		OrderDate:           utils.TruncateToDate(seed.OrderDate),
		DeliveryNumber:      deliveryNumber,
		DeliveryType:        seed.DeliveryType,
		DeliveryChargesType: seed.DeliveryChargesType,
		TotalCost:           decimal.Zero,
		TotalWeight:         decimal.Zero,
		DeliveryCharges:     decimal.Zero,
	}
	if cart.DeliveryChargesType == nil {
		cart.DeliveryChargesType = utils.NewFalse()
	}
	if seed.Route != nil {
		cart.CustomerName = seed.Route.CustomerName
		cart.PaymentTerms = seed.Route.PaymentTerms
		cart.DeliveryAddress = seed.Route.DeliveryAddress
		cart.RouteId = seed.Route.RouteId
		cart.RouteName = seed.Route.RouteName
	}

	if err := tx.WithContext(ctx).Create(&cart).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// Lost the race on idx_cart_key; someone else just created it.
			var winner Cart
			if ferr := tx.WithContext(ctx).
				Where("tenant_id = ? AND customer_id = ? AND customer_address_id = ? AND delivery_date = ?",
					key.TenantId, key.CustomerId, key.CustomerAddressId, date).
				First(&winner).Error; ferr == nil {
				return &winner, false, nil
			}
			return nil, false, &utils.ConflictError{Key: key.String()}
		}
		return nil, false, &utils.PersistenceError{Op: "create cart", Err: err}
	}
	return &cart, true, nil
}

// MergeContribution is the computed delta of one merge pass: the surviving
// lines and their fold into the cart aggregates.
type MergeContribution struct {
	Items           []*CartItem
	Pieces          int
	Cost            decimal.Decimal
	WeightKg        decimal.Decimal
	DeliveryCharges decimal.Decimal
}

func (c *MergeContribution) AppendedCount() int {
	return len(c.Items)
}

// BuildMergeContribution decides, line by line, whether a candidate becomes a
// new cart line, and folds the survivors into the aggregate delta.
// Aggregation rules:
//   - line cost = round(quantity x unit wholesale price, 2); the cost delta is
//     the line costs summed then rounded to 2 decimals
//   - weight accumulates the line's gram weight (not multiplied by quantity)
//     and is converted to kilograms once, after summation
//   - delivery charges accumulate only when the cart's deliveryChargesType
//     flag is set; otherwise the delta is zero
func BuildMergeContribution(cart *Cart, lines []*StandingOrderItem, weekdayShort string, alreadyMaterialized map[int]bool) *MergeContribution {
	contribution := &MergeContribution{
		Cost:            decimal.Zero,
		WeightKg:        decimal.Zero,
		DeliveryCharges: decimal.Zero,
	}
	chargeDelivery := utils.DereferencePtr(cart.DeliveryChargesType)

	weightGrams := decimal.Zero
	for _, line := range lines {
		if alreadyMaterialized[line.ItemId] {
			continue
		}
		quantity := line.QuantityFor(weekdayShort)
		if quantity <= 0 {
			continue
		}

		cost := utils.RoundMoney(line.WholesalePrice.Mul(decimal.NewFromInt(int64(quantity))))
		contribution.Items = append(contribution.Items, &CartItem{
			TenantId:     cart.TenantId,
			CartId:       cart.ID,
			CustomerId:   cart.CustomerId,
			ItemId:       line.ItemId,
			DeliveryDate: cart.DeliveryDate,
			ItemGroupId:  line.ItemGroupId,
			ItemName:     line.ItemName,
			LegacyCode:   line.LegacyCode,
			Quantity:     quantity,
			UnitWeight:   line.UnitWeight,
			UnitPrice:    line.WholesalePrice,
			Cost:         cost,
		})

		contribution.Pieces += quantity
		contribution.Cost = contribution.Cost.Add(cost)
		weightGrams = weightGrams.Add(line.UnitWeight)
		if chargeDelivery {
			contribution.DeliveryCharges = contribution.DeliveryCharges.Add(line.DeliveryCharges)
		}
	}

	contribution.Cost = utils.RoundMoney(contribution.Cost)
	contribution.WeightKg = weightGrams.Div(decimal.NewFromInt(1000))
	return contribution
}

// ApplyContribution folds the delta into the cart's running aggregates.
// Call only when the contribution has at least one line.
func ApplyContribution(cart *Cart, contribution *MergeContribution) {
	cart.TotalPieces += contribution.Pieces
	cart.TotalCost = utils.RoundMoney(cart.TotalCost.Add(contribution.Cost))
	cart.TotalWeight = cart.TotalWeight.Add(contribution.WeightKg)
	if utils.DereferencePtr(cart.DeliveryChargesType) {
		cart.DeliveryCharges = cart.DeliveryCharges.Add(contribution.DeliveryCharges)
	} else {
		cart.DeliveryCharges = decimal.Zero
	}
}

// materializedItemIds returns the item ids already materialized for the
// dedup scope in force: (tenant, customer, item, delivery date) by default,
// or the legacy (tenant, customer, item) scope under LEGACY_CART_ITEM_DEDUP.
func materializedItemIds(ctx context.Context, tx *gorm.DB, tenantId string, customerId int, deliveryDate time.Time) (map[int]bool, error) {
	query := tx.WithContext(ctx).Model(&CartItem{}).
		Where("tenant_id = ? AND customer_id = ?", tenantId, customerId)
	if !config.LegacyCartItemDedup() {
		query = query.Where("delivery_date = ?", utils.TruncateToDate(deliveryDate))
	}
	var ids []int
	if err := query.Pluck("item_id", &ids).Error; err != nil {
		return nil, &utils.PersistenceError{Op: "load materialized item ids", Err: err}
	}
	existing := make(map[int]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}
	return existing, nil
}

// MergeCartItems appends the not-yet-materialized lines to the cart, updates
// the cart aggregates and re-stamps every line of the cart with the new
// cart-level total cost. Returns the number of appended lines; zero means
// the merge was a no-op and the cart was left untouched.
func MergeCartItems(ctx context.Context, tx *gorm.DB, cart *Cart, lines []*StandingOrderItem, weekdayShort string) (int, error) {
	existing, err := materializedItemIds(ctx, tx, cart.TenantId, cart.CustomerId, cart.DeliveryDate)
	if err != nil {
		return 0, err
	}

	contribution := BuildMergeContribution(cart, lines, weekdayShort, existing)
	if contribution.AppendedCount() == 0 {
		return 0, nil
	}

	if err := tx.WithContext(ctx).Create(&contribution.Items).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// A concurrent merge won the dedup index; nothing new to add.
			return 0, nil
		}
		return 0, &utils.PersistenceError{Op: "insert cart items", Err: err}
	}

	ApplyContribution(cart, contribution)
	err = tx.WithContext(ctx).Model(&Cart{}).
		Where("id = ? AND tenant_id = ?", cart.ID, cart.TenantId).
		Updates(map[string]interface{}{
			"total_pieces":     cart.TotalPieces,
			"total_cost":       cart.TotalCost,
			"total_weight":     cart.TotalWeight,
			"delivery_charges": cart.DeliveryCharges,
		}).Error
	if err != nil {
		return 0, &utils.PersistenceError{Op: "update cart aggregates", Err: err}
	}

	// Every line of the cart carries the cart-level total as a secondary
	// field; downstream reports depend on it.
	err = tx.WithContext(ctx).Model(&CartItem{}).
		Where("cart_id = ? AND tenant_id = ?", cart.ID, cart.TenantId).
		Update("cart_total_cost", cart.TotalCost).Error
	if err != nil {
		return 0, &utils.PersistenceError{Op: "stamp cart total cost", Err: err}
	}

	return contribution.AppendedCount(), nil
}
