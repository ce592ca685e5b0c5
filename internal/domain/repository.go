package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ и возвращает его с присвоенным ID.
	// Вторая активная корзина пользователя даёт ErrCartOrderExists.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// GetForUpdate как Get, но блокирует строку до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	// FindCart возвращает активный заказ-корзину пользователя или ErrOrderNotFound.
	FindCart(ctx context.Context, userID int64) (Order, error)
	// ListByUser возвращает активные заказы пользователя кроме корзины, новые первыми.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// Save перезаписывает изменяемые поля заказа.
	Save(ctx context.Context, order Order) error
}

// LineItemRepository хранит позиции заказов.
type LineItemRepository interface {
	// ListByOrder возвращает позиции заказа в порядке создания.
	ListByOrder(ctx context.Context, orderID int64) ([]LineItem, error)
	// ListByOrders возвращает позиции нескольких заказов одной выборкой.
	ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]LineItem, error)
	// Get возвращает позицию товара в заказе или ErrLineItemNotFound.
	Get(ctx context.Context, orderID, productID int64) (LineItem, error)
	// Create добавляет позицию; пара (заказ, товар) уникальна.
	Create(ctx context.Context, item LineItem) (LineItem, error)
	Update(ctx context.Context, item LineItem) error
	Delete(ctx context.Context, id int64) error
}

// ProductRepository даёт доступ к каталогу и складским остаткам.
type ProductRepository interface {
	// Get возвращает товар вместе с акциями.
	Get(ctx context.Context, id int64) (Product, error)
	// GetMany загружает товары с акциями и данными карточки одной выборкой.
	// Отсутствующие ID пропускаются, порядок по возрастанию ID.
	GetMany(ctx context.Context, ids []int64) ([]Product, error)
	// LockForUpdate блокирует строки товаров в порядке возрастания ID.
	LockForUpdate(ctx context.Context, ids []int64) (map[int64]Product, error)
	// AddStock атомарно прибавляет delta к остатку.
	AddStock(ctx context.Context, id int64, delta int) error
	// Create добавляет товар вместе с акциями.
	Create(ctx context.Context, product Product) (Product, error)
}

// PaymentRepository хранит подтверждения оплаты.
type PaymentRepository interface {
	// Create сохраняет платёж; повтор для того же заказа даёт ErrAlreadyPaid.
	Create(ctx context.Context, payment Payment) (Payment, error)
	// GetByOrder возвращает платёж заказа или ErrOrderNotFound.
	GetByOrder(ctx context.Context, orderID int64) (Payment, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID int64) ([]TimelineEvent, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DeliveryConfigRepository хранит единственную строку конфигурации магазина.
type DeliveryConfigRepository interface {
	// Get возвращает конфигурацию или ErrConfigNotFound.
	Get(ctx context.Context) (DeliveryConfig, error)
	// Save создаёт или перезаписывает конфигурацию.
	Save(ctx context.Context, cfg DeliveryConfig) error
}

// Tx — набор репозиториев, работающих в одной транзакции.
type Tx interface {
	Orders() OrderRepository
	LineItems() LineItemRepository
	Products() ProductRepository
	Payments() PaymentRepository
	Timeline() TimelineRepository
	Outbox() OutboxRepository
	DeliveryConfig() DeliveryConfigRepository
}

// Store открывает транзакции над хранилищем.
type Store interface {
	// WithinTx выполняет fn в транзакции: ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// Outbox возвращает репозиторий outbox вне транзакции (для воркера).
	Outbox() OutboxRepository
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// OutboxPurger удаляет доставленные сообщения outbox, обновлённые раньше before.
// Возвращает число удалённых записей, не больше limit.
type OutboxPurger interface {
	PurgeSent(ctx context.Context, before time.Time, limit int) (int, error)
}
