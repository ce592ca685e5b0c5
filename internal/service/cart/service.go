// Package cart реализует корзину в двух режимах: сессионную для анонимов и заказ-корзину для пользователей.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
	"github.com/vladislavdragonenkov/bgshop/internal/service/lineitem"
	"github.com/vladislavdragonenkov/bgshop/internal/service/order"
	"github.com/vladislavdragonenkov/bgshop/internal/service/pricing"
)

// Identity: кто обращается к корзине. UserID > 0 означает аутентифицированного пользователя.
type Identity struct {
	UserID    int64
	SessionID string
}

// Authenticated сообщает, работает ли корзина в режиме заказа.
func (id Identity) Authenticated() bool {
	return id.UserID > 0
}

// Item: товар корзины с данными для отображения.
type Item struct {
	Product domain.Product
	Count   int
	// Price: цена со скидкой на сегодня.
	Price        decimal.Decimal
	FreeDelivery bool
}

// Service выбирает Backend по Identity и собирает представление корзины.
type Service struct {
	store      domain.Store
	orders     *order.Manager
	reconciler *lineitem.Reconciler
	sessions   domain.SessionCartStore
	config     domain.DeliveryConfigSource
	logger     *log.Entry
	metrics    *metrics.ShopMetrics
	now        func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics включает метрики операций корзины.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени для расчёта скидок.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис корзины.
func NewService(
	store domain.Store,
	orders *order.Manager,
	reconciler *lineitem.Reconciler,
	sessions domain.SessionCartStore,
	config domain.DeliveryConfigSource,
	logger *log.Entry,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	s := &Service{
		store:      store,
		orders:     orders,
		reconciler: reconciler,
		sessions:   sessions,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend возвращает хранилище корзины для id.
func (s *Service) Backend(id Identity) Backend {
	if id.Authenticated() {
		return NewPersistedBackend(s.store, s.orders, s.reconciler, id.UserID)
	}
	return NewSessionBackend(s.sessions, id.SessionID, s.logger)
}

// Add кладёт товар в корзину. Товар должен существовать в каталоге.
func (s *Service) Add(ctx context.Context, id Identity, productID int64, qty int, override bool) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}

	backend := s.Backend(id)
	if backend.Mode() == ModeSession {
		if err := s.ensureProduct(ctx, productID); err != nil {
			return err
		}
	}
	if err := backend.Add(ctx, productID, qty, override); err != nil {
		return err
	}

	s.metrics.RecordCartOperation("add", backend.Mode())
	s.logger.WithFields(log.Fields{
		"mode":       backend.Mode(),
		"user_id":    id.UserID,
		"product_id": productID,
		"count":      qty,
		"override":   override,
	}).Debug("cart item added")
	return nil
}

// Remove убирает qty единиц товара из корзины.
func (s *Service) Remove(ctx context.Context, id Identity, productID int64, qty int) error {
	backend := s.Backend(id)
	if err := backend.Remove(ctx, productID, qty); err != nil {
		return err
	}

	s.metrics.RecordCartOperation("remove", backend.Mode())
	return nil
}

// Items возвращает содержимое корзины с карточками товаров.
// Товары, пропавшие из каталога, в выдачу не попадают.
func (s *Service) Items(ctx context.Context, id Identity) ([]Item, error) {
	entries, err := s.Backend(id).Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Item{}, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}

	var products []domain.Product
	err = s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		products, err = tx.Products().GetMany(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load delivery config: %w", err)
	}

	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := s.now()
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		product, ok := byID[e.ProductID]
		if !ok {
			continue
		}
		items = append(items, Item{
			Product:      product,
			Count:        e.Count,
			Price:        pricing.DiscountedPrice(product, now),
			FreeDelivery: pricing.FreeDelivery(cfg, product.Price),
		})
	}
	return items, nil
}

// Merge переносит сессионную корзину в заказ-корзину пользователя и очищает сессию.
// Количество из сессии заменяет количество в заказе.
func (s *Service) Merge(ctx context.Context, userID int64, sessionID string) error {
	session := NewSessionBackend(s.sessions, sessionID, s.logger)
	entries, err := session.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	persisted := NewPersistedBackend(s.store, s.orders, s.reconciler, userID)
	if err := persisted.Merge(ctx, entries, s.logger); err != nil {
		return fmt.Errorf("merge session cart: %w", err)
	}
	if err := session.Clear(ctx); err != nil {
		return fmt.Errorf("clear session cart: %w", err)
	}

	s.metrics.RecordCartOperation("merge", ModeOrder)
	s.logger.WithFields(log.Fields{"user_id": userID, "items": len(entries)}).Info("session cart merged")
	return nil
}

func (s *Service) ensureProduct(ctx context.Context, productID int64) error {
	return s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.Products().Get(ctx, productID); err != nil {
			return err
		}
		return nil
	})
}
