package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

// state: всё содержимое in-memory хранилища.
// Транзакция работает с копией и подменяет оригинал при успехе.
type state struct {
	orders    map[int64]domain.Order
	lineItems map[int64]domain.LineItem
	products  map[int64]domain.Product
	payments  map[int64]domain.Payment
	timeline  []domain.TimelineEvent
	outbox    map[string]outboxRecord
	config    *domain.DeliveryConfig

	orderSeq    int64
	lineItemSeq int64
	productSeq  int64
	saleSeq     int64
	paymentSeq  int64
	outboxSeq   int64
}

func newState() *state {
	return &state{
		orders:    make(map[int64]domain.Order),
		lineItems: make(map[int64]domain.LineItem),
		products:  make(map[int64]domain.Product),
		payments:  make(map[int64]domain.Payment),
		outbox:    make(map[string]outboxRecord),
	}
}

// clone копирует карты. Срезы внутри значений не мутируются на месте, поэтому делятся.
func (s *state) clone() *state {
	c := *s
	c.orders = maps.Clone(s.orders)
	c.lineItems = maps.Clone(s.lineItems)
	c.products = maps.Clone(s.products)
	c.payments = maps.Clone(s.payments)
	c.outbox = maps.Clone(s.outbox)
	c.timeline = append([]domain.TimelineEvent(nil), s.timeline...)
	if s.config != nil {
		cfg := *s.config
		c.config = &cfg
	}
	return &c
}

// Store: in-memory реализация domain.Store для локальной разработки и тестов.
// Транзакции сериализуются одним мьютексом.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx выполняет fn над копией состояния и фиксирует её, если fn не вернула ошибку.
// Вложенный вызов WithinTx из fn приведёт к deadlock.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Outbox возвращает outbox-репозиторий, где каждая операция: отдельная транзакция.
func (s *Store) Outbox() domain.OutboxRepository {
	return &autoCommitOutbox{store: s}
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error {
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) Orders() domain.OrderRepository       { return &orderRepositoryInMemory{st: t.st} }
func (t *memTx) LineItems() domain.LineItemRepository { return &lineItemRepositoryInMemory{st: t.st} }
func (t *memTx) Products() domain.ProductRepository   { return &productRepositoryInMemory{st: t.st} }
func (t *memTx) Payments() domain.PaymentRepository   { return &paymentRepositoryInMemory{st: t.st} }
func (t *memTx) Timeline() domain.TimelineRepository  { return &timelineRepositoryInMemory{st: t.st} }
func (t *memTx) Outbox() domain.OutboxRepository      { return &outboxRepositoryInMemory{st: t.st} }
func (t *memTx) DeliveryConfig() domain.DeliveryConfigRepository {
	return &deliveryConfigRepositoryInMemory{st: t.st}
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*memTx)(nil)
)
