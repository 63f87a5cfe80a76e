package workflow

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/utils"
)

// Standing orders are cut two days ahead of delivery.
const deliveryLeadDays = 2

// TargetDate is the resolved calendar target of one run. WeekdayShort keys
// the per-weekday quantity columns ("mon"); WeekdayLong matches weekday-name
// rows in customer_week_routes ("Monday").
type TargetDate struct {
	DeliveryDate time.Time
	WeekdayShort string
	WeekdayLong  string
}

// ResolveTarget computes the delivery date and weekday labels for a run
// started at now. Pure function of the instant; labels come from the run's
// local calendar.
func ResolveTarget(now time.Time) TargetDate {
	deliveryDate := utils.TruncateToDate(now.AddDate(0, 0, deliveryLeadDays))
	long := deliveryDate.Weekday().String()
	return TargetDate{
		DeliveryDate: deliveryDate,
		WeekdayShort: strings.ToLower(long[:3]),
		WeekdayLong:  long,
	}
}
