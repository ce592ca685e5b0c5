package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/outbox"
)

// OrderConfirmed: полезная нагрузка задачи order.confirmed.
type OrderConfirmed struct {
	OrderID   int64  `json:"orderId"`
	UserID    int64  `json:"userId"`
	TotalCost string `json:"totalCost"`
	Email     string `json:"email,omitempty"`
}

// LogNotifier «отправляет» уведомление о подтверждении заказа в лог.
// Используется, когда брокер сообщений не настроен.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт уведомитель.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "notifications")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(_ context.Context, msg domain.OutboxMessage) error {
	var payload OrderConfirmed
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return outbox.Permanent(fmt.Errorf("decode order confirmed payload: %w", err))
	}

	n.logger.WithFields(log.Fields{
		"order_id":   payload.OrderID,
		"user_id":    payload.UserID,
		"total_cost": payload.TotalCost,
		"email":      payload.Email,
	}).Info("order confirmed notification")
	return nil
}

var _ domain.OutboxPublisher = (*LogNotifier)(nil)
