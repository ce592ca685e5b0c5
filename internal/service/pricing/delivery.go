package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

// MainCost возвращает сумму позиций заказа без доставки.
func MainCost(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Cost())
	}
	return total
}

// DeliveryCost считает доставку: обычная платная ниже порога бесплатной доставки,
// экспресс всегда добавляет наценку.
func DeliveryCost(cfg domain.DeliveryConfig, deliveryType domain.DeliveryType, mainCost decimal.Decimal) decimal.Decimal {
	cost := decimal.Zero
	if mainCost.LessThan(cfg.FreeDeliveryBoundary) {
		cost = cost.Add(cfg.OrdinaryDeliveryCost)
	}
	if deliveryType == domain.DeliveryTypeExpress {
		cost = cost.Add(cfg.ExpressDeliveryExtraCharge)
	}
	return cost
}

// TotalCost возвращает стоимость позиций вместе с доставкой.
func TotalCost(cfg domain.DeliveryConfig, deliveryType domain.DeliveryType, items []domain.LineItem) decimal.Decimal {
	main := MainCost(items)
	return main.Add(DeliveryCost(cfg, deliveryType, main))
}

// FreeDelivery сообщает, доставляется ли товар с такой ценой бесплатно.
func FreeDelivery(cfg domain.DeliveryConfig, price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(cfg.FreeDeliveryBoundary)
}
