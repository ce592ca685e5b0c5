package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryConfig — редактируемая администратором конфигурация магазина.
// Хранится одной строкой.
type DeliveryConfig struct {
	OrdinaryDeliveryCost       decimal.Decimal
	ExpressDeliveryExtraCharge decimal.Decimal
	FreeDeliveryBoundary       decimal.Decimal

	CompanyInfo  string
	LegalAddress string
	MainPhone    string
	MainEmail    string

	UpdatedAt time.Time
}

// Validate проверяет, что стоимости неотрицательны.
func (c DeliveryConfig) Validate() error {
	if c.OrdinaryDeliveryCost.IsNegative() ||
		c.ExpressDeliveryExtraCharge.IsNegative() ||
		c.FreeDeliveryBoundary.IsNegative() {
		return ErrDeliveryCostNegative
	}
	return nil
}
