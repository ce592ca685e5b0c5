package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCart — заказ используется как корзина авторизованного пользователя.
	OrderStatusCart OrderStatus = "cart"
	// OrderStatusEditing — заказ оформляется, позиции и адрес ещё можно менять.
	OrderStatusEditing OrderStatus = "editing"
	// OrderStatusAccepted — заказ подтверждён, товар списан со склада.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusRejected — оплата не прошла, товар возвращён на склад.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusCompleted — заказ оплачен и выдан.
	OrderStatusCompleted OrderStatus = "completed"
)

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCart, OrderStatusEditing, OrderStatusAccepted, OrderStatusRejected, OrderStatusCompleted:
		return true
	}
	return false
}

// DeliveryType задаёт способ доставки.
type DeliveryType string

const (
	DeliveryTypeOrdinary DeliveryType = "ordinary"
	DeliveryTypeExpress  DeliveryType = "express"
)

// Valid сообщает, известен ли способ доставки.
func (t DeliveryType) Valid() bool {
	return t == DeliveryTypeOrdinary || t == DeliveryTypeExpress
}

// PaymentType задаёт способ оплаты.
type PaymentType string

const (
	PaymentTypeOnline PaymentType = "online"
	PaymentTypeCash   PaymentType = "cash"
	PaymentTypeOther  PaymentType = "other"
)

// Valid сообщает, известен ли способ оплаты.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeOnline, PaymentTypeCash, PaymentTypeOther:
		return true
	}
	return false
}

// Order агрегирует состояние заказа. Позиции хранятся отдельно (LineItem).
type Order struct {
	ID           int64
	UserID       int64
	CreatedAt    time.Time
	DeliveryType DeliveryType
	Status       OrderStatus
	// Paid меняется только обработчиком платёжного webhook.
	Paid        bool
	PaymentType PaymentType
	City        string
	Address     string
	Comment     string
	// IsActive=false означает логическое удаление.
	IsActive bool
}

// NewOrder заполняет значения по умолчанию для нового заказа.
func NewOrder(userID int64, status OrderStatus, now time.Time) Order {
	return Order{
		UserID:       userID,
		CreatedAt:    now.UTC(),
		DeliveryType: DeliveryTypeOrdinary,
		Status:       status,
		PaymentType:  PaymentTypeOnline,
		IsActive:     true,
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if !o.DeliveryType.Valid() {
		errs = append(errs, ErrDeliveryTypeInvalid)
	}
	if !o.PaymentType.Valid() {
		errs = append(errs, ErrPaymentTypeInvalid)
	}
	if len(o.City) > 255 {
		errs = append(errs, ErrCityTooLong)
	}
	if len(o.Address) > 1024 || len(o.Comment) > 1024 {
		errs = append(errs, ErrTextTooLong)
	}

	return errs
}

// OwnedBy сообщает, принадлежит ли активный заказ пользователю.
func (o *Order) OwnedBy(userID int64) bool {
	return o.IsActive && o.UserID == userID
}

// LineItem — позиция заказа: товар, цена на момент фиксации и количество.
type LineItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Price     decimal.Decimal
	Count     int
}

// MaxLineItemCount ограничивает количество товара в одной позиции (SMALLINT в схеме).
const MaxLineItemCount = 32767

// Cost возвращает стоимость позиции.
func (li LineItem) Cost() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Count)))
}

// DesiredItem — желаемое количество товара в заказе.
type DesiredItem struct {
	ProductID int64
	Count     int
}

// OrderAttrs — изменяемые поля заказа. nil означает "не менять".
type OrderAttrs struct {
	DeliveryType *DeliveryType
	PaymentType  *PaymentType
	City         *string
	Address      *string
	Comment      *string
}

// Apply переносит заданные поля в заказ.
func (a OrderAttrs) Apply(o *Order) {
	if a.DeliveryType != nil {
		o.DeliveryType = *a.DeliveryType
	}
	if a.PaymentType != nil {
		o.PaymentType = *a.PaymentType
	}
	if a.City != nil {
		o.City = *a.City
	}
	if a.Address != nil {
		o.Address = *a.Address
	}
	if a.Comment != nil {
		o.Comment = *a.Comment
	}
}
