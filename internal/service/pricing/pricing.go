// Package pricing вычисляет цену товара с учётом акций и стоимость доставки.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountedPrice возвращает цену товара на дату asOf.
// Из акций, действующих на эту дату (границы включительно), берётся наибольшая скидка.
// Результат округляется до копеек по правилу half-up.
func DiscountedPrice(product domain.Product, asOf time.Time) decimal.Decimal {
	discount, ok := BestDiscount(product.Sales, asOf)
	if !ok {
		return product.Price
	}
	return ApplyDiscount(product.Price, discount)
}

// BestDiscount возвращает максимальную скидку среди акций, активных на дату asOf.
func BestDiscount(sales []domain.Sale, asOf time.Time) (int, bool) {
	day := dayOf(asOf)

	best, found := 0, false
	for _, sale := range sales {
		if day.Before(dayOf(sale.DateFrom)) || day.After(dayOf(sale.DateTo)) {
			continue
		}
		if !found || sale.Discount > best {
			best, found = sale.Discount, true
		}
	}
	return best, found
}

// ApplyDiscount возвращает round(price * (1 - discount/100), 2).
func ApplyDiscount(price decimal.Decimal, discount int) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(discount)))
	return price.Mul(factor).Div(hundred).Round(2)
}

// dayOf отбрасывает время суток; календарная дата берётся в зоне самого значения.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
