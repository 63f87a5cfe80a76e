package models

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

func mondayLine(itemId int, qty int, price string, weightGrams string) *StandingOrderItem {
	return &StandingOrderItem{
		TenantId:       "t1",
		ItemId:         itemId,
		ItemName:       "sourdough",
		Mon:            WeekdayQuantity{Quantity: qty},
		WholesalePrice: decimal.RequireFromString(price),
		UnitWeight:     decimal.RequireFromString(weightGrams),
	}
}

func testCart(chargeDelivery bool) *Cart {
	flag := utils.NewFalse()
	if chargeDelivery {
		flag = utils.NewTrue()
	}
	return &Cart{
		ID:                  7,
		TenantId:            "t1",
		CustomerId:          42,
		CustomerAddressId:   9,
		DeliveryDate:        time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		DeliveryChargesType: flag,
		TotalCost:           decimal.Zero,
		TotalWeight:         decimal.Zero,
		DeliveryCharges:     decimal.Zero,
	}
}

// Monday quantity 3 of a 2.00 item weighing 150g yields line cost 6.00,
// cart weight 0.15kg, cart cost 6.00.
func TestBuildMergeContribution_SingleLine(t *testing.T) {
	cart := testCart(false)
	lines := []*StandingOrderItem{mondayLine(1, 3, "2.00", "150")}

	contribution := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{})

	if contribution.AppendedCount() != 1 {
		t.Fatalf("appended = %d, want 1", contribution.AppendedCount())
	}
	item := contribution.Items[0]
	if item.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", item.Quantity)
	}
	if !item.Cost.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("line cost = %s, want 6.00", item.Cost)
	}
	if !contribution.WeightKg.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("weight = %s kg, want 0.15", contribution.WeightKg)
	}

	ApplyContribution(cart, contribution)
	if !cart.TotalCost.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("cart total cost = %s, want 6.00", cart.TotalCost)
	}
	if !cart.TotalWeight.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("cart total weight = %s, want 0.15", cart.TotalWeight)
	}
	if cart.TotalPieces != 3 {
		t.Errorf("cart total pieces = %d, want 3", cart.TotalPieces)
	}
}

func TestBuildMergeContribution_LineCostRounding(t *testing.T) {
	cart := testCart(false)
	// 3 x 1.333 = 3.999 -> 4.00 per line; 2 lines -> 8.00
	lines := []*StandingOrderItem{
		mondayLine(1, 3, "1.333", "100"),
		mondayLine(2, 3, "1.333", "100"),
	}

	contribution := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{})
	if !contribution.Items[0].Cost.Equal(decimal.RequireFromString("4.00")) {
		t.Errorf("line cost = %s, want 4.00", contribution.Items[0].Cost)
	}
	if !contribution.Cost.Equal(decimal.RequireFromString("8.00")) {
		t.Errorf("contribution cost = %s, want 8.00", contribution.Cost)
	}
}

// Weight folds the line's gram weight once, not multiplied by quantity, and
// converts to kilograms after summation.
func TestBuildMergeContribution_WeightPerLineNotPerPiece(t *testing.T) {
	cart := testCart(false)
	lines := []*StandingOrderItem{
		mondayLine(1, 10, "1.00", "150"),
		mondayLine(2, 2, "1.00", "300"),
	}

	contribution := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{})
	if !contribution.WeightKg.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("weight = %s kg, want 0.45", contribution.WeightKg)
	}
}

// An item already materialized for the dedup scope is skipped, producing an
// appended count one less than the line count.
func TestBuildMergeContribution_SkipsMaterializedItem(t *testing.T) {
	cart := testCart(false)
	lines := []*StandingOrderItem{
		mondayLine(1, 3, "2.00", "150"),
		mondayLine(2, 1, "5.00", "500"),
	}

	contribution := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{1: true})
	if contribution.AppendedCount() != 1 {
		t.Fatalf("appended = %d, want 1", contribution.AppendedCount())
	}
	if contribution.Items[0].ItemId != 2 {
		t.Errorf("surviving item = %d, want 2", contribution.Items[0].ItemId)
	}
	if !contribution.Cost.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("contribution cost = %s, want 5.00", contribution.Cost)
	}
}

func TestBuildMergeContribution_AllLinesDeduped_IsNoOp(t *testing.T) {
	cart := testCart(false)
	lines := []*StandingOrderItem{mondayLine(1, 3, "2.00", "150")}

	contribution := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{1: true})
	if contribution.AppendedCount() != 0 {
		t.Fatalf("appended = %d, want 0", contribution.AppendedCount())
	}
	if contribution.Pieces != 0 || !contribution.Cost.IsZero() || !contribution.WeightKg.IsZero() {
		t.Errorf("no-op contribution mutated aggregates: %+v", contribution)
	}
}

func TestBuildMergeContribution_ZeroWeekdayQuantitySkipped(t *testing.T) {
	cart := testCart(false)
	line := mondayLine(1, 0, "2.00", "150")
	line.Tue = WeekdayQuantity{Quantity: 5}

	contribution := BuildMergeContribution(cart, []*StandingOrderItem{line}, WeekdayKeyMon, map[int]bool{})
	if contribution.AppendedCount() != 0 {
		t.Fatalf("appended = %d, want 0; monday quantity is zero", contribution.AppendedCount())
	}
}

func TestDeliveryCharges_OnlyWhenCartFlagSet(t *testing.T) {
	withCharge := mondayLine(1, 2, "2.00", "100")
	withCharge.DeliveryCharges = decimal.RequireFromString("1.50")

	flagged := testCart(true)
	contribution := BuildMergeContribution(flagged, []*StandingOrderItem{withCharge}, WeekdayKeyMon, map[int]bool{})
	ApplyContribution(flagged, contribution)
	if !flagged.DeliveryCharges.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("delivery charges = %s, want 1.50", flagged.DeliveryCharges)
	}

	unflagged := testCart(false)
	unflagged.DeliveryCharges = decimal.RequireFromString("9.99")
	contribution = BuildMergeContribution(unflagged, []*StandingOrderItem{withCharge}, WeekdayKeyMon, map[int]bool{})
	ApplyContribution(unflagged, contribution)
	if !unflagged.DeliveryCharges.IsZero() {
		t.Errorf("delivery charges = %s, want 0 when flag is unset", unflagged.DeliveryCharges)
	}
}

// Re-applying a second, fully-deduped pass leaves the totals unchanged.
func TestMergeIdempotence_SecondPassAddsNothing(t *testing.T) {
	cart := testCart(false)
	lines := []*StandingOrderItem{
		mondayLine(1, 3, "2.00", "150"),
		mondayLine(2, 1, "5.00", "500"),
	}

	first := BuildMergeContribution(cart, lines, WeekdayKeyMon, map[int]bool{})
	ApplyContribution(cart, first)
	costAfterFirst := cart.TotalCost
	weightAfterFirst := cart.TotalWeight
	piecesAfterFirst := cart.TotalPieces

	materialized := map[int]bool{}
	for _, item := range first.Items {
		materialized[item.ItemId] = true
	}
	second := BuildMergeContribution(cart, lines, WeekdayKeyMon, materialized)
	if second.AppendedCount() != 0 {
		t.Fatalf("second pass appended %d, want 0", second.AppendedCount())
	}
	// caller contract: no-op merges must not touch the cart
	if !cart.TotalCost.Equal(costAfterFirst) || !cart.TotalWeight.Equal(weightAfterFirst) || cart.TotalPieces != piecesAfterFirst {
		t.Errorf("totals drifted on idempotent re-run")
	}
}

func TestBuildDeliveryNumber_Shape(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 4, 5, 987654321, time.UTC)
	deliveryDate := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	got := BuildDeliveryNumber(now, deliveryDate)
	want := "150405" + "20260831" + "9876"
	if got != want {
		t.Errorf("delivery number = %s, want %s", got, want)
	}
	if strings.ContainsAny(got, "-:") {
		t.Errorf("delivery number contains separators: %s", got)
	}
}
