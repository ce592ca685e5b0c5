package domain

import "time"

// Типы событий жизненного цикла заказа.
const (
	TimelineOrderCreated   = "OrderCreated"
	TimelineOrderEditing   = "OrderEditing"
	TimelineOrderAccepted  = "OrderAccepted"
	TimelineOrderRejected  = "OrderRejected"
	TimelineOrderPaid      = "OrderPaid"
	TimelineOrderCompleted = "OrderCompleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  int64
	Type     string
	Reason   string
	Occurred time.Time
}
