package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDiscountedPrice(t *testing.T) {
	t.Parallel()

	base := decimal.RequireFromString("100.00")
	from, to := day(2024, 3, 1), day(2024, 3, 10)

	tests := []struct {
		name  string
		sales []domain.Sale
		asOf  time.Time
		want  string
	}{
		{name: "no sales", asOf: day(2024, 3, 5), want: "100"},
		{name: "inside window", sales: []domain.Sale{{Discount: 20, DateFrom: from, DateTo: to}}, asOf: day(2024, 3, 5), want: "80"},
		{name: "first day inclusive", sales: []domain.Sale{{Discount: 20, DateFrom: from, DateTo: to}}, asOf: from, want: "80"},
		{name: "last day inclusive with time", sales: []domain.Sale{{Discount: 20, DateFrom: from, DateTo: to}}, asOf: to.Add(23 * time.Hour), want: "80"},
		{name: "day before", sales: []domain.Sale{{Discount: 20, DateFrom: from, DateTo: to}}, asOf: from.AddDate(0, 0, -1), want: "100"},
		{name: "day after", sales: []domain.Sale{{Discount: 20, DateFrom: from, DateTo: to}}, asOf: to.AddDate(0, 0, 1), want: "100"},
		{
			name: "largest discount wins",
			sales: []domain.Sale{
				{Discount: 10, DateFrom: from, DateTo: to},
				{Discount: 35, DateFrom: from, DateTo: to},
				{Discount: 90, DateFrom: to.AddDate(0, 0, 1), DateTo: to.AddDate(0, 0, 5)},
			},
			asOf: day(2024, 3, 5),
			want: "65",
		},
		{name: "full discount", sales: []domain.Sale{{Discount: 100, DateFrom: from, DateTo: to}}, asOf: from, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := DiscountedPrice(domain.Product{Price: base, Sales: tt.sales}, tt.asOf)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestApplyDiscount_RoundsHalfUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price    string
		discount int
		want     string
	}{
		{price: "10.05", discount: 50, want: "5.03"},
		{price: "0.99", discount: 33, want: "0.66"},
		{price: "19.99", discount: 15, want: "16.99"},
		{price: "1.00", discount: 0, want: "1"},
	}

	for _, tt := range tests {
		got := ApplyDiscount(decimal.RequireFromString(tt.price), tt.discount)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ApplyDiscount(%s, %d) = %s, want %s", tt.price, tt.discount, got, tt.want)
		}
	}
}

func TestDiscountedPrice_BoundaryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := day(2024, 1, 1).AddDate(0, 0, rapid.IntRange(0, 365).Draw(t, "start"))
		length := rapid.IntRange(0, 30).Draw(t, "length")
		end := start.AddDate(0, 0, length)
		discount := rapid.IntRange(1, 100).Draw(t, "discount")
		cents := rapid.Int64Range(1, 10_000_00).Draw(t, "cents")

		product := domain.Product{
			Price: decimal.New(cents, -2),
			Sales: []domain.Sale{{Discount: discount, DateFrom: start, DateTo: end}},
		}
		discounted := ApplyDiscount(product.Price, discount)

		if got := DiscountedPrice(product, start); !got.Equal(discounted) {
			t.Fatalf("date_from must be inclusive: got %s want %s", got, discounted)
		}
		if got := DiscountedPrice(product, end); !got.Equal(discounted) {
			t.Fatalf("date_to must be inclusive: got %s want %s", got, discounted)
		}
		if got := DiscountedPrice(product, start.AddDate(0, 0, -1)); !got.Equal(product.Price) {
			t.Fatalf("day before window must not be discounted: got %s", got)
		}
		if got := DiscountedPrice(product, end.AddDate(0, 0, 1)); !got.Equal(product.Price) {
			t.Fatalf("day after window must not be discounted: got %s", got)
		}
		if discounted.Exponent() < -2 {
			t.Fatalf("discounted price must have at most 2 decimal places: %s", discounted)
		}
	})
}

func TestDeliveryCost(t *testing.T) {
	t.Parallel()

	cfg := domain.DeliveryConfig{
		OrdinaryDeliveryCost:       decimal.NewFromInt(5),
		ExpressDeliveryExtraCharge: decimal.NewFromInt(10),
		FreeDeliveryBoundary:       decimal.NewFromInt(20),
	}

	tests := []struct {
		name         string
		deliveryType domain.DeliveryType
		main         string
		want         string
	}{
		{name: "ordinary below boundary", deliveryType: domain.DeliveryTypeOrdinary, main: "19.99", want: "5"},
		{name: "ordinary at boundary", deliveryType: domain.DeliveryTypeOrdinary, main: "20", want: "0"},
		{name: "express below boundary", deliveryType: domain.DeliveryTypeExpress, main: "10", want: "15"},
		{name: "express above boundary", deliveryType: domain.DeliveryTypeExpress, main: "240", want: "10"},
	}

	for _, tt := range tests {
		got := DeliveryCost(cfg, tt.deliveryType, decimal.RequireFromString(tt.main))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}

	items := []domain.LineItem{
		{Price: decimal.RequireFromString("80.00"), Count: 3},
		{Price: decimal.RequireFromString("2.50"), Count: 2},
	}
	if got := MainCost(items); !got.Equal(decimal.NewFromInt(245)) {
		t.Fatalf("unexpected main cost: %s", got)
	}
	if got := TotalCost(cfg, domain.DeliveryTypeExpress, items); !got.Equal(decimal.NewFromInt(255)) {
		t.Fatalf("unexpected total cost: %s", got)
	}
	if !FreeDelivery(cfg, decimal.NewFromInt(20)) || FreeDelivery(cfg, decimal.RequireFromString("19.99")) {
		t.Fatal("free delivery must start at the boundary inclusive")
	}
}
