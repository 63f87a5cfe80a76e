package models

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestFormatDeliveryAddress(t *testing.T) {
	cases := []struct {
		name string
		addr CustomerAddress
		want string
	}{
		{
			name: "full address",
			addr: CustomerAddress{
				AddressLine1: "12 Mill Lane",
				AddressLine2: "Unit 4",
				AddressLine3: "Rear entrance",
				City:         "Yangon",
				StateName:    "Yangon Region",
				CountryName:  "Myanmar",
				Postcode:     "11181",
			},
			want: "12 Mill Lane, Unit 4, Rear entrance, Yangon, Yangon Region, Myanmar, 11181.",
		},
		{
			name: "empty components trimmed",
			addr: CustomerAddress{
				AddressLine1: "12 Mill Lane",
				AddressLine2: "  ",
				City:         "Yangon",
				Postcode:     "11181",
			},
			want: "12 Mill Lane, Yangon, 11181.",
		},
		{
			name: "blank address has no trailing period",
			addr: CustomerAddress{},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatDeliveryAddress(&tc.addr); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	prev := config.GetDB()
	config.SetDB(gdb)
	t.Cleanup(func() { config.SetDB(prev) })
	return mock
}

// A customer with no active weekday assignment still gets a deliverable
// cart: the resolver returns the header and address info with empty route
// fields instead of failing the order.
func TestResolveDeliveryRoute_MissingAssignmentKeepsOrderDeliverable(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM `customers`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "payment_terms"}).
			AddRow(7, "t1", "Shwe Bakery", "NET15"))
	mock.ExpectQuery("SELECT (.+) FROM `customer_addresses`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "customer_id", "city", "postcode"}).
			AddRow(9, "t1", 7, "Yangon", "11181"))
	mock.ExpectQuery("SELECT (.+) FROM `customer_week_routes`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	info, err := ResolveDeliveryRoute(context.Background(), "t1", 7, 9, "Tuesday")
	if err != nil {
		t.Fatalf("ResolveDeliveryRoute returned %v, want nil", err)
	}
	if info.RouteId != 0 || info.RouteName != "" {
		t.Errorf("route fields = (%d, %q), want empty", info.RouteId, info.RouteName)
	}
	if info.CustomerName != "Shwe Bakery" || info.PaymentTerms != "NET15" {
		t.Errorf("customer snapshot = (%q, %q), want header values", info.CustomerName, info.PaymentTerms)
	}
	if info.DeliveryAddress != "Yangon, 11181." {
		t.Errorf("delivery address = %q, want %q", info.DeliveryAddress, "Yangon, 11181.")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected query flow: %v", err)
	}
}

func TestResolveDeliveryRoute_MissingAddressFailsOrder(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM `customers`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}).
			AddRow(7, "t1", "Shwe Bakery"))
	mock.ExpectQuery("SELECT (.+) FROM `customer_addresses`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	info, err := ResolveDeliveryRoute(context.Background(), "t1", 7, 9, "Tuesday")
	if err == nil {
		t.Fatal("expected an error for a missing address row")
	}
	if info != nil {
		t.Errorf("info = %+v, want nil on linkage failure", info)
	}
}

func TestInvalidateWeekRouteCache_NoRedisIsNoop(t *testing.T) {
	if err := InvalidateWeekRouteCache("t1", 9, "Tuesday"); err != nil {
		t.Errorf("InvalidateWeekRouteCache returned %v, want nil without redis", err)
	}
}
