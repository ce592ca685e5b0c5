// Package tasks реализует фоновые задачи поверх transactional outbox.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/outbox"
)

const aggregateOrder = "order"

// OutboxQueue ставит задачи в outbox; их выполняет outbox.Worker с Dispatcher в роли publisher.
type OutboxQueue struct {
	repo   domain.OutboxRepository
	logger *log.Entry
}

// NewOutboxQueue создаёт очередь поверх репозитория outbox без транзакции (Store.Outbox()).
func NewOutboxQueue(repo domain.OutboxRepository, logger *log.Entry) *OutboxQueue {
	if logger == nil {
		logger = log.New().WithField("component", "tasks")
	}
	return &OutboxQueue{repo: repo, logger: logger}
}

// Enqueue сохраняет задачу; выполнение асинхронное, результат вызывающему не возвращается.
func (q *OutboxQueue) Enqueue(ctx context.Context, task domain.Task) error {
	if task.Type == "" {
		return fmt.Errorf("task type is required")
	}

	msg, err := q.repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateOrder,
		AggregateID:   task.AggregateID,
		EventType:     task.Type,
		Payload:       task.Payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Type, err)
	}

	q.logger.WithFields(log.Fields{
		"task_id":      msg.ID,
		"task_type":    task.Type,
		"aggregate_id": task.AggregateID,
	}).Debug("task enqueued")
	return nil
}

// NewTask собирает задачу с JSON-полезной нагрузкой.
func NewTask(taskType, aggregateID string, payload any) (domain.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Task{}, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return domain.Task{Type: taskType, AggregateID: aggregateID, Payload: raw}, nil
}

// PublisherFunc позволяет использовать функцию как domain.OutboxPublisher.
type PublisherFunc func(ctx context.Context, msg domain.OutboxMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	return f(ctx, msg)
}

// Dispatcher маршрутизирует сообщения outbox обработчикам по типу события.
type Dispatcher struct {
	handlers map[string]domain.OutboxPublisher
	logger   *log.Entry
}

// NewDispatcher создаёт пустой маршрутизатор.
func NewDispatcher(logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.New().WithField("component", "tasks")
	}
	return &Dispatcher{handlers: make(map[string]domain.OutboxPublisher), logger: logger}
}

// Handle регистрирует обработчик типа события. Повторная регистрация заменяет прежний.
func (d *Dispatcher) Handle(eventType string, handler domain.OutboxPublisher) *Dispatcher {
	d.handlers[eventType] = handler
	return d
}

// Publish передаёт сообщение обработчику; неизвестный тип: неповторяемая ошибка.
func (d *Dispatcher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	handler, ok := d.handlers[msg.EventType]
	if !ok {
		d.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
		}).Warn("no handler for task type")
		return outbox.Permanent(fmt.Errorf("no handler for task type %q", msg.EventType))
	}
	return handler.Publish(ctx, msg)
}

var (
	_ domain.TaskQueue       = (*OutboxQueue)(nil)
	_ domain.OutboxPublisher = (*Dispatcher)(nil)
	_ domain.OutboxPublisher = PublisherFunc(nil)
)
