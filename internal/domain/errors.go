package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Ошибка отсутствующего пользователя у заказа.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка неизвестного способа доставки.
	ErrDeliveryTypeInvalid = errors.New("delivery type is invalid")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentTypeInvalid = errors.New("payment type is invalid")
	ErrCityTooLong        = errors.New("city must be at most 255 characters")
	ErrTextTooLong        = errors.New("address and comment must be at most 1024 characters")
	// Ошибка отсутствующего идентификатора заказа в платежах.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего внешнего идентификатора платежа.
	ErrPaymentIDRequired = errors.New("payment_id is required")
	// Ошибка некорректного процента скидки.
	ErrSaleDiscountInvalid = errors.New("sale discount must be within 0..100")
	// Ошибка периода акции, у которого конец раньше начала.
	ErrSaleDatesInvalid = errors.New("sale date_to must not be before date_from")
	// Ошибка отрицательной стоимости доставки.
	ErrDeliveryCostNegative = errors.New("delivery costs must be non-negative")
	// Ошибка некорректного количества товара.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// ErrQuantityTooLarge возвращается, если количество товара в позиции больше MaxLineItemCount.
	ErrQuantityTooLarge = errors.New("quantity exceeds line item limit")

	// ErrOrderNotFound возвращается, если заказ не найден, чужой или в неподходящем статусе.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrLineItemNotFound — у заказа нет позиции с таким товаром.
	ErrLineItemNotFound = errors.New("line item not found")
	// ErrLineItemExists — позиция с таким товаром у заказа уже есть.
	ErrLineItemExists = errors.New("line item already exists")
	// ErrCartOrderExists — у пользователя уже есть заказ-корзина.
	ErrCartOrderExists = errors.New("cart order already exists")
	// ErrConfigNotFound — конфигурация магазина ещё не сохранена.
	ErrConfigNotFound = errors.New("delivery config not found")

	// ErrCannotFulfill — заказ нельзя собрать со склада.
	ErrCannotFulfill = errors.New("cannot fulfill order")
	// ErrInsufficientStock — остатка товара не хватает.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductInactive — товар снят с продажи.
	ErrProductInactive = errors.New("product is inactive")

	// ErrInvalidTransition — переход статуса недопустим из текущего состояния.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrAlreadyPaid — заказ уже оплачен (повторная доставка webhook).
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrInvalidSignature — подпись платёжного сервиса не совпала.
	ErrInvalidSignature = errors.New("invalid payment service signature")
	// ErrUnknownPaymentStatus — webhook прислал неизвестный статус.
	ErrUnknownPaymentStatus = errors.New("unknown payment status")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// FulfillmentError уточняет причину ErrCannotFulfill для логов.
// errors.Is срабатывает и на ErrCannotFulfill, и на Reason.
type FulfillmentError struct {
	ProductID int64
	Reason    error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("%s: product %d: %s", ErrCannotFulfill, e.ProductID, e.Reason)
}

func (e *FulfillmentError) Unwrap() []error {
	return []error{ErrCannotFulfill, e.Reason}
}

// ValidationError содержит ошибки по полям входных данных.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError создаёт ошибку с одним полем.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add добавляет замечание по полю.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// Empty сообщает, что замечаний нет.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// JoinErrors собирает список ошибок инвариантов в одну строку.
func JoinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
