package models

// Weekday column keys. Short keys index the per-weekday quantity sub-objects
// (mon_quantity, ...); long names match rows in customer_week_routes.
const (
	WeekdayKeyMon = "mon"
	WeekdayKeyTue = "tue"
	WeekdayKeyWed = "wed"
	WeekdayKeyThu = "thu"
	WeekdayKeyFri = "fri"
	WeekdayKeySat = "sat"
	WeekdayKeySun = "sun"
)

// Whitelist for interpolating a weekday key into a column name.
// Never build the column from caller input without this check.
var validWeekdayKeys = map[string]bool{
	WeekdayKeyMon: true,
	WeekdayKeyTue: true,
	WeekdayKeyWed: true,
	WeekdayKeyThu: true,
	WeekdayKeyFri: true,
	WeekdayKeySat: true,
	WeekdayKeySun: true,
}

func IsValidWeekdayKey(key string) bool {
	return validWeekdayKeys[key]
}

type DeliveryType string

const (
	DeliveryTypeRoute  DeliveryType = "Route"
	DeliveryTypePickup DeliveryType = "Pickup"
)
