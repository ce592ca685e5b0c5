package domain

import "time"

// PaymentStatus — статус, который платёжный шлюз присылает в webhook.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFail    PaymentStatus = "fail"
)

// Payment — подтверждение оплаты заказа. На заказ не больше одной записи.
type Payment struct {
	ID         int64
	OrderID    int64
	ExternalID string
	CreatedAt  time.Time
}

// Validate проверяет обязательные поля платежа.
func (p *Payment) Validate() []error {
	var errs []error
	if p.OrderID <= 0 {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.ExternalID == "" {
		errs = append(errs, ErrPaymentIDRequired)
	}
	return errs
}
