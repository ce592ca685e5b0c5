package domain

import (
	"context"
	"time"
)

// Типы фоновых задач.
const (
	TaskOrderConfirmed  = "order.confirmed"
	TaskPaymentSimulate = "payment.simulate"
)

// Task — фоновая задача. Payload — JSON.
type Task struct {
	Type        string
	AggregateID string
	Payload     []byte
}

// TaskQueue принимает фоновые задачи. Результат выполнения вызывающему недоступен.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// SessionCartStore хранит корзины анонимных пользователей: product_id (строкой) -> количество.
type SessionCartStore interface {
	Load(ctx context.Context, sessionID string) (map[string]int, error)
	Save(ctx context.Context, sessionID string, cart map[string]int) error
	Clear(ctx context.Context, sessionID string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// DeliveryConfigSource отдаёт актуальную конфигурацию доставки (обычно через кэш).
// Нельзя вызывать изнутри Store.WithinTx.
type DeliveryConfigSource interface {
	Get(ctx context.Context) (DeliveryConfig, error)
}
